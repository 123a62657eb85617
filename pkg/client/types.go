package client

import "time"

// Location is a geographic position with an optional address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Record is a batch submission. Empty BatchNumber and zero Timestamp are
// filled in by the server.
type Record struct {
	ProductType string            `json:"productType"`
	Quantity    float64           `json:"quantity"`
	BatchNumber string            `json:"batchNumber"`
	Timestamp   int64             `json:"timestamp"`
	Location    *Location         `json:"location,omitempty"`
	Stage       string            `json:"stage,omitempty"`
	StageData   map[string]string `json:"stageData,omitempty"`
}

// TrailPoint is one hop in a product's journey.
type TrailPoint struct {
	Stage     string   `json:"stage"`
	Location  Location `json:"location"`
	Timestamp int64    `json:"timestamp"`
}

// Endorsement is a peer's signature over an entry hash.
type Endorsement struct {
	PeerID    string `json:"peerId"`
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

// ManufacturingDetails describes the processing facility.
type ManufacturingDetails struct {
	FacilityName  string `json:"facilityName"`
	LicenseNumber string `json:"licenseNumber"`
	ProcessedDate string `json:"processedDate"`
}

// Payload is the consumer verification record encoded in a product QR code.
type Payload struct {
	BatchID              string               `json:"batchId"`
	ProductName          string               `json:"productName"`
	BatchNumber          string               `json:"batchNumber"`
	HarvestDate          string               `json:"harvestDate"`
	Origin               string               `json:"origin"`
	QualityGrade         string               `json:"qualityGrade"`
	Certifications       []string             `json:"certifications"`
	BlockchainHash       string               `json:"blockchainHash"`
	VerificationURL      string               `json:"verificationUrl"`
	ExpiryDate           string               `json:"expiryDate"`
	ManufacturingDetails ManufacturingDetails `json:"manufacturingDetails"`
	LocationTrail        []TrailPoint         `json:"locationTrail"`
}

// Entry is a committed ledger entry as served to readers. Possession keys
// are never included.
type Entry struct {
	Index           int           `json:"index"`
	Hash            string        `json:"hash"`
	Record          Record        `json:"data"`
	Timestamp       int64         `json:"timestamp"`
	PreviousHash    string        `json:"previousHash,omitempty"`
	Endorsements    []Endorsement `json:"endorsements"`
	ConsumerPayload Payload       `json:"consumerQRData"`
	LocationTrail   []TrailPoint  `json:"locationTrail"`
}

// AppendResult is returned by AppendBatch.
type AppendResult struct {
	Entry           Entry  `json:"entry"`
	NextKey         string `json:"nextKey"`
	KeyEnvelope     string `json:"keyEnvelope,omitempty"`
	TransactionHash string `json:"transactionHash"`
}

// VerifyResult is the outcome of a scan check. Reason explains a failure.
type VerifyResult struct {
	Verified        bool   `json:"verified"`
	Reason          string `json:"reason,omitempty"`
	Entry           *Entry `json:"entry,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// ChainResult is returned by VerifyChain.
type ChainResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Status is the server's network and chain status.
type Status struct {
	Connected     bool   `json:"connected"`
	PeerCount     int    `json:"peerCount"`
	Entries       int    `json:"entries"`
	Root          string `json:"root,omitempty"`
	LastBlockTime *int64 `json:"lastBlockTime"`
	ChainValid    bool   `json:"chainValid"`
}

// KeyEnvelope is a wrapped possession key and its display tag.
type KeyEnvelope struct {
	Envelope string `json:"envelope"`
	Tag      string `json:"tag"`
}

// Webhook is a subscription that receives signed ledger event deliveries.
type Webhook struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
