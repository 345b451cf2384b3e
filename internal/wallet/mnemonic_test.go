package wallet

import "testing"

func TestMnemonicEncryptDecryptRoundTrip(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	enc, err := EncryptMnemonic(mnemonic, "correct horse battery staple 9!")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := DecryptMnemonic(enc, "correct horse battery staple 9!")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != mnemonic {
		t.Fatalf("round trip mismatch")
	}
}

func TestMnemonicDecryptWrongPassphraseFails(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	enc, err := EncryptMnemonic(mnemonic, "correct horse battery staple 9!")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptMnemonic(enc, "wrong passphrase entirely 0!"); err == nil {
		t.Fatalf("expected decrypt with wrong passphrase to fail")
	}
}

func TestMnemonicFilePersistence(t *testing.T) {
	dir := t.TempDir()
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	enc, err := EncryptMnemonic(mnemonic, "correct horse battery staple 9!")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := SaveMnemonicFile(dir, enc); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadMnemonicFile(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, err := DecryptMnemonic(loaded, "correct horse battery staple 9!")
	if err != nil {
		t.Fatalf("decrypt loaded: %v", err)
	}
	if got != mnemonic {
		t.Fatalf("round trip through disk mismatch")
	}
}

func TestEncryptMnemonicRejectsInvalidMnemonic(t *testing.T) {
	if _, err := EncryptMnemonic("not a real mnemonic at all", "correct horse battery staple 9!"); err == nil {
		t.Fatalf("expected invalid mnemonic to be rejected")
	}
}
