// Package client is the starnotary Go SDK.
//
// # Notarizing a star
//
// Generate (or load) a key, then let Notarize run the challenge, sign and
// submit steps in one call:
//
//	key, _ := signature.GenerateKey(signature.SchemeEd25519)
//	c, _ := client.New("http://localhost:8080")
//	rec, err := c.Notarize(ctx, key, json.RawMessage(`{"ra":"16h 29m","dec":"-26° 29'","story":"Antares"}`))
//	if errors.Is(err, client.ErrChallengeExpired) {
//	    // the server took longer than its window; retry
//	}
//	fmt.Println(rec.Height, rec.Hash)
//
// # Step by step
//
// The challenge token must be signed by the key whose address is the
// identity, and submitted before the window closes:
//
//	ch, _ := c.RequestChallenge(ctx, key.Address())
//	sig, _ := key.Sign([]byte(ch.Token))
//	rec, _ := c.SubmitStar(ctx, client.SubmitRequest{
//	    Identity:  key.Address(),
//	    Token:     ch.Token,
//	    Signature: sig,
//	    Star:      star,
//	})
//
// # Queries
//
//	rec, err := c.BlockByHeight(ctx, 0)      // genesis
//	rec, err = c.BlockByHash(ctx, hash)
//	stars, err := c.StarsByIdentity(ctx, key.Address())
//	report, err := c.Verify(ctx)             // report.Errors lists every violation
//
// Missing records yield ErrNotFound, rejected signatures or challenges yield
// ErrUnauthorized.
package client
