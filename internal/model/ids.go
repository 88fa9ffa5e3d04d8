package model

// ClientID identifies one account holder in the input stream.
type ClientID uint16

// TxID identifies one deposit or withdrawal. IDs are globally unique
// across the whole stream, not per client.
type TxID uint32
