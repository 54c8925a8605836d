package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kdtcrypt/kdt"
	"github.com/kdtcrypt/kdt/internal/config"
	"github.com/kdtcrypt/kdt/internal/report"
	"github.com/kdtcrypt/kdt/internal/storage"
)

var (
	errNoPublicKeys = errors.New("you don't have any public keys")
	errNoKeysets    = errors.New("you don't have any owned key sets")
)

// environment is what an action runs against.
type environment struct {
	stdin      io.Reader
	stdout     io.Writer
	rep        *report.Reporter
	conf       config.Config
	passphrase storage.PassphraseSource
	store      *kdt.Store
	arg        string
}

func (e *environment) input(prompt string) (string, error) {
	e.rep.Info("%s", prompt)
	return report.ReadAll(e.stdin)
}

type action struct {
	short   string
	long    string
	idName  string
	usage   string
	takesID bool
	// mutates actions save the store after running.
	mutates bool
	run     func(*environment) error
}

func (a *action) names() []string {
	if a.short == "" {
		return []string{a.long}
	}
	return []string{a.short, a.long}
}

var actions = []*action{
	{short: "g", long: "gen-key", usage: "generate an owned key set; the owner name is read from stdin",
		mutates: true, run: genKey},
	{short: "i", long: "import", usage: "import a public key from stdin",
		mutates: true, run: importPublic},
	{long: "import-keyset", usage: "import an owned key set backup from stdin",
		mutates: true, run: importKeyset},
	{short: "e", long: "encrypt", idName: "PUBID", takesID: true, usage: "encrypt stdin for a public key",
		run: encrypt},
	{short: "d", long: "decrypt", idName: "PRIVID", takesID: true, usage: "decrypt a message from stdin",
		run: decrypt},
	{short: "s", long: "sign", idName: "PRIVID", takesID: true, usage: "sign stdin with an owned key set",
		run: sign},
	{short: "v", long: "verify", idName: "PUBID", takesID: true, usage: "verify a signed message from stdin",
		run: verify},
	{long: "list-keys", usage: "list the public key database",
		run: listKeys},
	{short: "l", long: "list-key-pairs", usage: "list the owned key database",
		run: listKeyPairs},
	{long: "export-pubkey", idName: "PRIVID", takesID: true, usage: "print the public key of an owned key set",
		run: exportPublic},
	{long: "export-keyset", idName: "PRIVID", takesID: true, usage: "print a backup of an owned key set",
		run: exportKeyset},
	{long: "del-pubkey", idName: "PUBID", takesID: true, usage: "remove a public key",
		mutates: true, run: deletePublic},
	{long: "del-keyset", idName: "PRIVID", takesID: true, usage: "remove an owned key set",
		mutates: true, run: deleteKeyset},
	{long: "set-passphrase", usage: "store a new owned key passphrase in the OS keyring and reseal",
		run: setPassphrase},
}

func genKey(env *environment) error {
	owner, err := env.input("Type your name below. It will be visible to everyone who imports your public key.")
	if err != nil {
		return err
	}
	env.rep.Info("Generating owned key set...")
	id, err := env.store.GenerateKeyset(strings.TrimSpace(owner))
	if err != nil {
		return err
	}
	env.rep.Success("Created owned key set with private key ID %s", id)
	fmt.Fprintln(env.stdout, id)
	return nil
}

func importPublic(env *environment) error {
	text, err := env.input("Input the public KDT key below (CTRL-D to finish):")
	if err != nil {
		return err
	}
	id, err := env.store.ImportPublic(text)
	if err != nil {
		return err
	}
	env.rep.Success("Imported public key with ID %s", id)
	fmt.Fprintln(env.stdout, id)
	return nil
}

func importKeyset(env *environment) error {
	text, err := env.input("Input the KDT key set backup below (CTRL-D to finish):")
	if err != nil {
		return err
	}
	id, err := env.store.ImportKeyset(text)
	if err != nil {
		return err
	}
	env.rep.Success("Imported owned key set with private key ID %s", id)
	fmt.Fprintln(env.stdout, id)
	return nil
}

func encrypt(env *environment) error {
	text, err := env.input("Type your message below (CTRL-D to finish):")
	if err != nil {
		return err
	}
	armored, err := env.store.Encrypt(env.arg, report.TrimNewline(text))
	if err != nil {
		return err
	}
	env.rep.Info("Encrypted message:")
	fmt.Fprintln(env.stdout, armored)
	return nil
}

func decrypt(env *environment) error {
	armored, err := env.input("Input the encrypted message below (CTRL-D to finish):")
	if err != nil {
		return err
	}
	text, err := env.store.Decrypt(env.arg, armored)
	if err != nil {
		return err
	}
	env.rep.Info("Decrypted message:")
	fmt.Fprintln(env.stdout, text)
	return nil
}

func sign(env *environment) error {
	text, err := env.input("Input the message to sign below (CTRL-D to finish):")
	if err != nil {
		return err
	}
	armored, err := env.store.Sign(env.arg, report.TrimNewline(text))
	if err != nil {
		return err
	}
	env.rep.Info("Signed message:")
	fmt.Fprintln(env.stdout, armored)
	return nil
}

func verify(env *environment) error {
	armored, err := env.input("Input the signed message below (CTRL-D to finish):")
	if err != nil {
		return err
	}
	ok, err := env.store.Verify(env.arg, armored)
	if err != nil {
		return err
	}
	if !ok {
		env.rep.Warn("The signature is NOT valid!")
		return errSilent
	}
	env.rep.Success("The signature is valid.")
	return nil
}

func listKeys(env *environment) error {
	keys := env.store.PublicKeys()
	if len(keys) == 0 {
		return errNoPublicKeys
	}
	env.rep.Info("Keys in your public key database:")
	for _, pk := range keys {
		printKey(env.stdout, pk.ID(), pk.Owner())
	}
	return nil
}

func listKeyPairs(env *environment) error {
	keysets := env.store.Keysets()
	if len(keysets) == 0 {
		return errNoKeysets
	}
	env.rep.Info("Keys in your owned key database:")
	for _, ks := range keysets {
		printKey(env.stdout, ks.ID(), ks.Owner())
		fmt.Fprintf(env.stdout, "Public ID: %s\n", ks.Public.ID())
	}
	return nil
}

func printKey(w io.Writer, id, owner string) {
	fmt.Fprintf(w, "ID: %s\nOwner: %s\nFingerprint: %s\n", id, owner, kdt.Fingerprint(id))
}

func exportPublic(env *environment) error {
	text, err := env.store.ExportPublic(env.arg)
	if err != nil {
		return err
	}
	env.rep.Success("Public key for key ID %s:", env.arg)
	fmt.Fprintln(env.stdout, text)
	return nil
}

func exportKeyset(env *environment) error {
	text, err := env.store.ExportKeyset(env.arg)
	if err != nil {
		return err
	}
	env.rep.Warn("This backup contains your private key. Keep it secret.")
	fmt.Fprintln(env.stdout, text)
	return nil
}

func deletePublic(env *environment) error {
	if _, err := env.store.LookupPublic(env.arg); err != nil {
		return err
	}
	env.rep.Info("Removing public key with ID %s...", env.arg)
	env.store.RemovePublic(env.arg)
	env.rep.Success("Removed the public key.")
	return nil
}

func deleteKeyset(env *environment) error {
	if _, err := env.store.LookupKeyset(env.arg); err != nil {
		return err
	}
	env.rep.Info("Removing owned key set with private key ID %s...", env.arg)
	env.store.RemoveKeyset(env.arg)
	env.rep.Success("Removed the owned key set.")
	return nil
}

// setPassphrase replaces the keyring passphrase. The owned key database is
// resealed under the new passphrase first; the keyring only changes once
// that write succeeded, so a failed save leaves the old passphrase valid.
func setPassphrase(env *environment) error {
	ring, ok := env.passphrase.(*storage.KeyringPassphrase)
	if !ok {
		return usageError("--set-passphrase needs passphrase source %q, configured %q",
			config.PassphraseFromKeyring, env.conf.PassphraseSource)
	}
	old, err := ring.Passphrase()
	if err != nil {
		return err
	}
	env.rep.Info("Type the new passphrase (empty to store owned keys unsealed):")
	passphrase, err := report.ReadSecret(env.stdin)
	if err != nil {
		return err
	}

	if err := resealOwnedKeys(env, passphrase); err != nil {
		return fmt.Errorf("passphrase not changed: %w", err)
	}
	if err := ring.SetPassphrase(passphrase); err != nil {
		if rerr := resealOwnedKeys(env, old); rerr != nil {
			env.rep.Warn("Could not restore the owned key database: %v", rerr)
		}
		return fmt.Errorf("passphrase not changed: %w", err)
	}

	if passphrase == "" {
		env.rep.Warn("Owned keys will be stored without a passphrase.")
	}
	env.rep.Success("Passphrase updated.")
	return nil
}

func resealOwnedKeys(env *environment, passphrase string) error {
	persister, closeFn, err := openPersister(env.conf, storage.StaticPassphrase(passphrase))
	if err != nil {
		return err
	}
	defer closeFn()
	return persister.SaveOwnedKeys(env.store.Keysets())
}
