package secrets

// ServiceName is the vault service all backup blobs are filed under.
const ServiceName = "acctswap"
