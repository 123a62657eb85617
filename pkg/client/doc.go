// Package client is the AyuTrack Go SDK.
//
// It wraps the server's REST API: submitting batch records, looking up
// batches and their history, fetching consumer QR payloads, checking scanned
// payloads and the chain, and wrapping possession keys.
//
// # Submitting a batch
//
// A custodian with credentials obtains tokens automatically through the
// OAuth2 client-credentials grant:
//
//	c, err := client.New("https://ayutrack.example.com",
//	    client.WithCredentials("farm-coop-7", secret),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := c.AppendBatch(ctx, client.Record{
//	    ProductType: "Ashwagandha",
//	    Quantity:    250,
//	    Stage:       "HARVESTING",
//	}, previousKey)
//
// res.NextKey authorises the next append and is only returned once. Store it,
// or keep res.KeyEnvelope and recover the key later with DecodeKey.
//
// # Verifying a product
//
// Scanners decode the QR code and post its JSON as-is:
//
//	result, err := c.VerifyPayload(ctx, scanned)
//	if err == nil && result.Verified {
//	    fmt.Println("authentic:", result.Entry.Record.BatchNumber)
//	}
//
// # Caching
//
// WithCacheTTL caches batch lookups in memory. The cache is cleared whenever
// this client appends a batch.
package client
