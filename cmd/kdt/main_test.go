package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"

	"github.com/kdtcrypt/kdt"
	"github.com/kdtcrypt/kdt/internal/config"
	"github.com/kdtcrypt/kdt/internal/storage"
)

var idPattern = regexp.MustCompile(`^[0-9A-F]{64}$`)

// testHome is one key home with its own environment.
type testHome struct {
	t   *testing.T
	dir string
	env map[string]string
}

func newTestHome(t *testing.T) *testHome {
	t.Helper()
	return &testHome{
		t:   t,
		dir: t.TempDir(),
		env: map[string]string{config.EnvPassphraseSource: config.PassphraseNone},
	}
}

func (h *testHome) getenv(key string) string {
	if key == config.EnvHome {
		return h.dir
	}
	return h.env[key]
}

// run invokes kdt with stdin and returns stdout, stderr and the error.
func (h *testHome) run(stdin string, args ...string) (string, string, error) {
	h.t.Helper()
	return h.runReader(strings.NewReader(stdin), args...)
}

func (h *testHome) runReader(stdin io.Reader, args ...string) (string, string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	cfg := &Config{
		Stdin:  stdin,
		Stdout: &stdout,
		Stderr: &stderr,
		Getenv: h.getenv,
	}
	err := run(append([]string{"kdt"}, args...), cfg)
	return stdout.String(), stderr.String(), err
}

// mustRun is run that fails the test on error and returns trimmed stdout.
func (h *testHome) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	stdout, stderr, err := h.run(stdin, args...)
	if err != nil {
		h.t.Fatalf("kdt %v: %v\nstderr:\n%s", args, err, stderr)
	}
	return strings.TrimSpace(stdout)
}

func (h *testHome) genKey(owner string) string {
	h.t.Helper()
	id := h.mustRun(owner+"\n", "--gen-key")
	if !idPattern.MatchString(id) {
		h.t.Fatalf("gen-key printed %q, want a key ID", id)
	}
	return id
}

// publicID returns the ID of the public half of an owned key set.
func (h *testHome) publicID(keysetID string) (string, string) {
	h.t.Helper()
	block := h.mustRun("", "--export-pubkey", keysetID)
	pk, err := kdt.ParsePublicKey(block)
	if err != nil {
		h.t.Fatalf("ParsePublicKey() error = %v", err)
	}
	return pk.ID(), block
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Stdin != os.Stdin {
		t.Error("DefaultConfig().Stdin should be os.Stdin")
	}
	if cfg.Stdout != os.Stdout {
		t.Error("DefaultConfig().Stdout should be os.Stdout")
	}
	if cfg.Stderr != os.Stderr {
		t.Error("DefaultConfig().Stderr should be os.Stderr")
	}
	if cfg.Getenv == nil {
		t.Error("DefaultConfig().Getenv should be set")
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no action", nil},
		{"two actions", []string{"-g", "-l"}},
		{"short and long of different actions", []string{"--list-keys", "--list-key-pairs"}},
		{"unknown flag", []string{"--frobnicate"}},
		{"missing ID", []string{"--encrypt"}},
		{"positional argument", []string{"-l", "extra"}},
		{"only global flags", []string{"-q"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHome(t)
			_, _, err := h.run("", tt.args...)
			if !errors.Is(err, kdt.ErrUsage) {
				t.Fatalf("run() error = %v, want ErrUsage", err)
			}
			if code := exitCode(err); code != 2 {
				t.Errorf("exitCode() = %d, want 2", code)
			}
			if kind := kdt.Classify(err); kind != kdt.KindUserInput {
				t.Errorf("Classify() = %v, want %v", kind, kdt.KindUserInput)
			}
		})
	}
}

func TestRun_SameActionTwice(t *testing.T) {
	h := newTestHome(t)
	h.genKey("Alice")

	if _, _, err := h.run("", "-l", "--list-key-pairs"); err != nil {
		t.Fatalf("short and long form of one action should be accepted, got %v", err)
	}
}

func TestRun_Help(t *testing.T) {
	h := newTestHome(t)
	_, stderr, err := h.run("", "-h")
	if err != nil {
		t.Fatalf("run(-h) error = %v", err)
	}
	for _, want := range []string{"usage: kdt", "-g, --gen-key", "-e, --encrypt PUBID", "--del-keyset PRIVID"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("help output missing %q:\n%s", want, stderr)
		}
	}
}

func TestRun_GenKeyAndList(t *testing.T) {
	h := newTestHome(t)
	id := h.genKey("Alice Example")

	out := h.mustRun("", "--list-key-pairs")
	for _, want := range []string{
		"ID: " + id,
		"Owner: Alice Example",
		"Fingerprint: " + kdt.Fingerprint(id),
		"Public ID: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	if _, err := os.Stat(filepath.Join(h.dir, storage.DefaultOwnedKeysFile)); err != nil {
		t.Errorf("owned key database not written: %v", err)
	}
}

func TestRun_GenKeyDefaultOwner(t *testing.T) {
	h := newTestHome(t)
	h.genKey("")

	out := h.mustRun("", "-l")
	if !strings.Contains(out, "Owner: "+kdt.DefaultOwner) {
		t.Errorf("list output = %q, want default owner", out)
	}
}

func TestRun_ListEmpty(t *testing.T) {
	h := newTestHome(t)

	if _, _, err := h.run("", "--list-keys"); !errors.Is(err, errNoPublicKeys) {
		t.Errorf("--list-keys error = %v, want errNoPublicKeys", err)
	}
	if _, _, err := h.run("", "-l"); !errors.Is(err, errNoKeysets) {
		t.Errorf("-l error = %v, want errNoKeysets", err)
	}
}

func TestRun_EncryptDecrypt(t *testing.T) {
	alice := newTestHome(t)
	bob := newTestHome(t)

	aliceID := alice.genKey("Alice")
	_, block := alice.publicID(aliceID)

	pubID := bob.mustRun(block, "--import")
	if !idPattern.MatchString(pubID) {
		t.Fatalf("--import printed %q, want a key ID", pubID)
	}

	listed := bob.mustRun("", "--list-keys")
	if !strings.Contains(listed, "Owner: Alice") {
		t.Errorf("--list-keys = %q, want Alice's key", listed)
	}

	armored := bob.mustRun("Hello, Alice! 你好\n", "-e", pubID)
	if !strings.HasPrefix(armored, "-----BEGIN KDT MESSAGE-----") {
		t.Fatalf("encrypt output = %q, want a KDT MESSAGE block", armored)
	}

	plain, _, err := alice.run(armored, "-d", aliceID)
	if err != nil {
		t.Fatalf("decrypt error = %v", err)
	}
	if plain != "Hello, Alice! 你好\n" {
		t.Errorf("decrypt output = %q, want %q", plain, "Hello, Alice! 你好\n")
	}
}

func TestRun_DecryptWithWrongKey(t *testing.T) {
	h := newTestHome(t)
	alice := h.genKey("Alice")
	eve := h.genKey("Eve")
	alicePub, _ := h.publicID(alice)

	armored := h.mustRun("secret", "-e", alicePub)

	_, _, err := h.run(armored, "-d", eve)
	if !errors.Is(err, kdt.ErrAuthentication) {
		t.Fatalf("decrypt with wrong key error = %v, want ErrAuthentication", err)
	}
	if kind := kdt.Classify(err); kind != kdt.KindCrypto {
		t.Errorf("Classify() = %v, want %v", kind, kdt.KindCrypto)
	}
	if code := exitCode(err); code != 1 {
		t.Errorf("exitCode() = %d, want 1", code)
	}
}

func TestRun_EncryptUnknownKey(t *testing.T) {
	h := newTestHome(t)
	_, _, err := h.run("hi", "-e", strings.Repeat("AB", 32))
	if !errors.Is(err, kdt.ErrUnknownKeyID) {
		t.Fatalf("error = %v, want ErrUnknownKeyID", err)
	}
}

func TestRun_SignVerify(t *testing.T) {
	h := newTestHome(t)
	id := h.genKey("Alice")
	pubID, _ := h.publicID(id)

	signed := h.mustRun("I owe Bob 5 coins.\n", "-s", id)
	if !strings.Contains(signed, "I owe Bob 5 coins.\n\n-----BEGIN KDT SIGNATURE-----") {
		t.Fatalf("signed output = %q", signed)
	}

	_, stderr, err := h.run(signed, "-v", pubID)
	if err != nil {
		t.Fatalf("verify error = %v", err)
	}
	if !strings.Contains(stderr, "(success) The signature is valid.") {
		t.Errorf("verify stderr = %q", stderr)
	}

	forged := strings.Replace(signed, "5 coins", "500 coins", 1)
	_, stderr, err = h.run(forged, "-v", pubID)
	if !errors.Is(err, errSilent) {
		t.Fatalf("verify forged error = %v, want errSilent", err)
	}
	if code := exitCode(err); code != 1 {
		t.Errorf("exitCode() = %d, want 1", code)
	}
	if !strings.Contains(stderr, "(warn) The signature is NOT valid!") {
		t.Errorf("verify forged stderr = %q", stderr)
	}
}

func TestRun_VerifyMalformed(t *testing.T) {
	h := newTestHome(t)
	id := h.genKey("Alice")
	pubID, _ := h.publicID(id)

	_, _, err := h.run("not a signed message", "-v", pubID)
	if !errors.Is(err, kdt.ErrEnvelopeFormat) {
		t.Fatalf("error = %v, want ErrEnvelopeFormat", err)
	}
}

func TestRun_ImportErrors(t *testing.T) {
	h := newTestHome(t)
	id := h.genKey("Alice")
	_, block := h.publicID(id)

	if _, _, err := h.run("garbage", "-i"); !errors.Is(err, kdt.ErrEnvelopeFormat) {
		t.Errorf("import garbage error = %v, want ErrEnvelopeFormat", err)
	}

	h.mustRun(block, "-i")
	_, _, err := h.run(block, "-i")
	if !errors.Is(err, kdt.ErrDuplicateKey) {
		t.Fatalf("second import error = %v, want ErrDuplicateKey", err)
	}
	if kind := kdt.Classify(err); kind != kdt.KindState {
		t.Errorf("Classify() = %v, want %v", kind, kdt.KindState)
	}
}

func TestRun_ExportImportKeyset(t *testing.T) {
	src := newTestHome(t)
	dst := newTestHome(t)

	id := src.genKey("Alice")
	pubID, _ := src.publicID(id)
	backup := src.mustRun("", "--export-keyset", id)

	imported := dst.mustRun(backup, "--import-keyset")
	if imported != id {
		t.Fatalf("--import-keyset printed %q, want %q", imported, id)
	}

	armored := src.mustRun("moved", "-e", pubID)
	plain := dst.mustRun(armored, "-d", id)
	if plain != "moved" {
		t.Errorf("decrypt after import = %q, want %q", plain, "moved")
	}
}

func TestRun_DeletePubkey(t *testing.T) {
	h := newTestHome(t)
	id := h.genKey("Alice")
	_, block := h.publicID(id)
	pubID := h.mustRun(block, "-i")

	if _, _, err := h.run("", "--del-pubkey", strings.Repeat("0", 64)); !errors.Is(err, kdt.ErrUnknownKeyID) {
		t.Errorf("delete unknown error = %v, want ErrUnknownKeyID", err)
	}

	h.mustRun("", "--del-pubkey", strings.ToLower(pubID))
	if _, _, err := h.run("", "--list-keys"); !errors.Is(err, errNoPublicKeys) {
		t.Errorf("--list-keys after delete error = %v, want errNoPublicKeys", err)
	}
}

func TestRun_DeleteKeyset(t *testing.T) {
	h := newTestHome(t)
	keep := h.genKey("Keep")
	drop := h.genKey("Drop")

	h.mustRun("", "--del-keyset", drop)

	out := h.mustRun("", "-l")
	if !strings.Contains(out, keep) || strings.Contains(out, drop) {
		t.Errorf("list after delete = %q", out)
	}
}

func TestRun_ReadOnlyActionsDoNotSave(t *testing.T) {
	h := newTestHome(t)
	id := h.genKey("Alice")

	path := filepath.Join(h.dir, storage.DefaultOwnedKeysFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	const marker = "# untouched\n"
	if _, err := f.WriteString(marker); err != nil {
		t.Fatal(err)
	}
	f.Close()

	h.mustRun("", "-l")
	h.mustRun("text", "-s", id)
	h.mustRun("", "--export-keyset", id)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(data, []byte(marker)) {
		t.Error("read-only actions rewrote the owned key database")
	}

	h.mustRun("Bob", "-g")
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.HasSuffix(data, []byte(marker)) {
		t.Error("gen-key did not save the owned key database")
	}
}

func TestRun_Quiet(t *testing.T) {
	h := newTestHome(t)

	_, stderr, err := h.run("Alice", "-q", "-g")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if stderr != "" {
		t.Errorf("quiet stderr = %q, want empty", stderr)
	}

	h.env[config.EnvQuiet] = "true"
	_, stderr, err = h.run("Bob", "-g")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if stderr != "" {
		t.Errorf("KDT_QUIET stderr = %q, want empty", stderr)
	}
}

func TestRun_HomeFlag(t *testing.T) {
	h := newTestHome(t)
	other := t.TempDir()

	h.mustRun("Alice", "--home", other, "-g")

	if _, err := os.Stat(filepath.Join(other, storage.DefaultOwnedKeysFile)); err != nil {
		t.Errorf("--home not used: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, storage.DefaultOwnedKeysFile)); !os.IsNotExist(err) {
		t.Errorf("KDT_HOME used despite --home: %v", err)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	h := newTestHome(t)
	path := filepath.Join(t.TempDir(), "kdt.yaml")
	conf := "ownedKeysFile: mine.yaml\npublicKeysFile: theirs.yaml\n"
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}

	h.mustRun("Alice", "--config", path, "-g")

	if _, err := os.Stat(filepath.Join(h.dir, "mine.yaml")); err != nil {
		t.Errorf("configured owned keys file not written: %v", err)
	}

	_, _, err := h.run("", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "-l")
	if err == nil {
		t.Error("missing explicit config file should fail")
	}
}

func TestRun_SQLiteBackend(t *testing.T) {
	h := newTestHome(t)
	h.env[config.EnvBackend] = config.BackendSQLite

	id := h.genKey("Alice")
	pubID, _ := h.publicID(id)
	armored := h.mustRun("over sqlite", "-e", pubID)
	if plain := h.mustRun(armored, "-d", id); plain != "over sqlite" {
		t.Errorf("decrypt = %q, want %q", plain, "over sqlite")
	}

	if _, err := os.Stat(filepath.Join(h.dir, storage.DefaultDatabaseFile)); err != nil {
		t.Errorf("sqlite database not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, storage.DefaultOwnedKeysFile)); !os.IsNotExist(err) {
		t.Errorf("yaml database written with sqlite backend: %v", err)
	}
}

func TestRun_SealedWithEnvPassphrase(t *testing.T) {
	h := newTestHome(t)
	h.env[config.EnvPassphraseSource] = config.PassphraseFromEnv
	t.Setenv(config.EnvPassphrase, "correct horse")

	id := h.genKey("Alice")

	data, err := os.ReadFile(filepath.Join(h.dir, storage.DefaultOwnedKeysFile))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("PRIVKEY BLOCK")) {
		t.Fatal("owned key database written in the clear")
	}

	if out := h.mustRun("", "-l"); !strings.Contains(out, id) {
		t.Errorf("list with passphrase = %q", out)
	}

	t.Setenv(config.EnvPassphrase, "wrong")
	_, _, err = h.run("", "-l")
	if !errors.Is(err, storage.ErrSealAuth) {
		t.Fatalf("wrong passphrase error = %v, want ErrSealAuth", err)
	}
	if !errors.Is(err, kdt.ErrStoreUnreadable) {
		t.Errorf("wrong passphrase error = %v, want ErrStoreUnreadable", err)
	}
}

func useTestKeyring(t *testing.T) *storage.KeyringPassphrase {
	t.Helper()
	ring := storage.NewKeyringPassphrase(keyring.NewArrayKeyring(nil))
	orig := passphraseSource
	passphraseSource = func(conf config.Config) (storage.PassphraseSource, error) {
		if conf.PassphraseSource == config.PassphraseFromKeyring {
			return ring, nil
		}
		return orig(conf)
	}
	t.Cleanup(func() { passphraseSource = orig })
	return ring
}

func TestRun_SetPassphrase(t *testing.T) {
	ring := useTestKeyring(t)
	h := newTestHome(t)
	h.env[config.EnvPassphraseSource] = config.PassphraseFromKeyring

	id := h.genKey("Alice")
	path := filepath.Join(h.dir, storage.DefaultOwnedKeysFile)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("PRIVKEY BLOCK")) {
		t.Fatal("owned key database should start unsealed with an empty keyring")
	}

	h.mustRun("hunter2\n", "--set-passphrase")

	if got, _ := ring.Passphrase(); got != "hunter2" {
		t.Errorf("keyring passphrase = %q, want %q", got, "hunter2")
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("PRIVKEY BLOCK")) {
		t.Error("owned key database not resealed")
	}
	if out := h.mustRun("", "-l"); !strings.Contains(out, id) {
		t.Errorf("list after set-passphrase = %q", out)
	}
}

// hookReader runs before on its first Read, after the store was loaded.
type hookReader struct {
	r      io.Reader
	before func()
}

func (h *hookReader) Read(p []byte) (int, error) {
	if h.before != nil {
		h.before()
		h.before = nil
	}
	return h.r.Read(p)
}

func TestRun_SetPassphraseSaveFailureKeepsOldPassphrase(t *testing.T) {
	ring := useTestKeyring(t)
	h := newTestHome(t)
	h.env[config.EnvPassphraseSource] = config.PassphraseFromKeyring

	id := h.genKey("Alice")
	h.mustRun("old\n", "--set-passphrase")

	path := filepath.Join(h.dir, storage.DefaultOwnedKeysFile)
	backup := path + ".bak"
	stdin := &hookReader{
		r: strings.NewReader("new\n"),
		before: func() {
			// A non-empty directory in place of the database makes the
			// atomic rename fail.
			if err := os.Rename(path, backup); err != nil {
				t.Fatal(err)
			}
			if err := os.MkdirAll(filepath.Join(path, "blocker"), 0o700); err != nil {
				t.Fatal(err)
			}
		},
	}
	if _, _, err := h.runReader(stdin, "--set-passphrase"); err == nil {
		t.Fatal("set-passphrase should fail when the owned key database cannot be written")
	}

	if got, _ := ring.Passphrase(); got != "old" {
		t.Errorf("keyring passphrase = %q, want %q", got, "old")
	}

	if err := os.RemoveAll(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(backup, path); err != nil {
		t.Fatal(err)
	}
	if out := h.mustRun("", "-l"); !strings.Contains(out, id) {
		t.Errorf("owned keys unreadable after failed set-passphrase: %q", out)
	}
}

func TestRun_SetPassphraseNeedsKeyring(t *testing.T) {
	h := newTestHome(t)

	_, _, err := h.run("pw\n", "--set-passphrase")
	if !errors.Is(err, kdt.ErrUsage) {
		t.Fatalf("error = %v, want ErrUsage", err)
	}
}

func TestFatal(t *testing.T) {
	originalExitFunc := exitFunc
	defer func() { exitFunc = originalExitFunc }()

	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantOutput string
	}{
		{"plain error", errors.New("boom"), 1, "(FATAL) boom\n"},
		{"usage error", usageError("no action given"), 2, "(FATAL) invalid usage: no action given\n"},
		{"already reported", errSilent, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := -1
			exitFunc = func(c int) { code = c }
			var stderr bytes.Buffer

			fatal(&stderr, tt.err)

			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if stderr.String() != tt.wantOutput {
				t.Errorf("output = %q, want %q", stderr.String(), tt.wantOutput)
			}
		})
	}
}

func TestRun_LockHeld(t *testing.T) {
	orig := lockTimeout
	lockTimeout = 200 * time.Millisecond
	defer func() { lockTimeout = orig }()

	h := newTestHome(t)
	lock, err := storage.AcquireLock(t.Context(), h.dir)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	_, _, err = h.run("", "-l")
	if !errors.Is(err, storage.ErrLocked) {
		t.Fatalf("error = %v, want ErrLocked", err)
	}
}
