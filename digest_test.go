package authcore

import (
	"bytes"
	"testing"

	"github.com/carebridge/authcore/internal/opaque"
)

func TestSecretHasherDeterministicAndPeppered(t *testing.T) {
	var secret opaque.Secret
	copy(secret[:], bytes.Repeat([]byte{0x11}, len(secret)))

	h1 := newSecretHasher(testPepper)
	h2 := newSecretHasher(bytes.Repeat([]byte{0xFF}, 32))

	if h1.sum(secret) != h1.sum(secret) {
		t.Fatal("digest not deterministic")
	}
	if h1.sum(secret) == h2.sum(secret) {
		t.Fatal("digest ignores the pepper")
	}

	var other opaque.Secret
	other[0] = 1
	if h1.sum(secret) == h1.sum(other) {
		t.Fatal("distinct secrets collided")
	}
}

func TestDigestEqualNormalizesStoredLength(t *testing.T) {
	hasher := newSecretHasher(testPepper)
	var secret opaque.Secret
	computed := hasher.sum(secret)

	if !digestEqual(computed[:], computed) {
		t.Fatal("equal digests rejected")
	}

	// A corrupted stored length must compare (and fail) over the fixed
	// 32-byte shape, whatever the stored size is.
	for _, stored := range [][]byte{nil, {}, computed[:16], append(computed[:], 0xAA)} {
		if digestEqual(stored, computed) {
			t.Fatalf("corrupted stored digest of len %d accepted", len(stored))
		}
	}

	var flipped [32]byte
	copy(flipped[:], computed[:])
	flipped[31] ^= 0x01
	if digestEqual(computed[:], flipped) {
		t.Fatal("near-miss digest accepted")
	}
}

func TestEngineRejectsWeakKeyMaterial(t *testing.T) {
	dir := newMockDirectory()
	rdb := newTestRedis(t)

	if _, err := New(Config{
		Pepper: []byte("short"),
		Bearer: BearerConfig{SigningKey: testSigningKey},
	}, Deps{Redis: rdb, Directory: dir}); err == nil {
		t.Fatal("short pepper accepted")
	}

	if _, err := New(Config{
		Pepper: testPepper,
		Bearer: BearerConfig{SigningKey: []byte("short")},
	}, Deps{Redis: rdb, Directory: dir}); err == nil {
		t.Fatal("short signing key accepted")
	}

	if _, err := New(Config{
		Pepper: testPepper,
		Bearer: BearerConfig{SigningKey: testSigningKey},
	}, Deps{Redis: rdb}); err == nil {
		t.Fatal("missing directory accepted")
	}
}
