// Package kdt implements KDT, a hybrid post-quantum encryption and signing
// tool.
//
// Messages are encrypted with ML-KEM-768 and AES-256-GCM and signed with
// ML-DSA-65. Keys and messages travel as text envelopes:
//
//	-----BEGIN KDT PUBKEY BLOCK-----
//	<base64 fields joined by '*', wrapped at 64 columns>
//	-----END KDT PUBKEY BLOCK-----
//
// Every key is identified by the uppercase hex SHA-256 of its envelope.
//
// Basic usage:
//
//	store, err := kdt.Load(&kdt.MemoryPersister{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create a keyset and share its public half
//	id, err := store.GenerateKeyset("Alice")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pub, _ := store.ExportPublic(id)
//
//	// Somebody imports it and encrypts
//	pubID, _ := other.ImportPublic(pub)
//	armored, _ := other.Encrypt(pubID, "hello")
//
//	// Alice decrypts
//	text, err := store.Decrypt(id, armored)
//
// Errors can be matched with errors.Is against the sentinels in this
// package and grouped with Classify.
package kdt
