package redis

import "testing"

func TestKeyBuilderChecksumsNamespaceAddress(t *testing.T) {
	kb := NewKeyBuilder("0x1111111111111111111111111111111111111111")
	want := "0x1111111111111111111111111111111111111111:trust:signers"
	if got := kb.TrustedSigners(); got != want {
		t.Errorf("TrustedSigners() = %q, want %q", got, want)
	}
}

func TestKeyBuilderPassesThroughNonAddressNamespace(t *testing.T) {
	kb := NewKeyBuilder("staging")
	if got, want := kb.TrustedSigners(), "staging:trust:signers"; got != want {
		t.Errorf("TrustedSigners() = %q, want %q", got, want)
	}
	if got, want := kb.ConfigSnapshot(), "staging:trust:config"; got != want {
		t.Errorf("ConfigSnapshot() = %q, want %q", got, want)
	}
}

func TestKeyBuilderFeedSignersKeyedByFeedIDHex(t *testing.T) {
	kb := NewKeyBuilder("staging")
	if got, want := kb.FeedSigners("abcd"), "staging:trust:feed:abcd:signers"; got != want {
		t.Errorf("FeedSigners() = %q, want %q", got, want)
	}
}
