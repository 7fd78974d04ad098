package cryptox

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	for _, size := range []int{TokenSize128, TokenSize256, 24} {
		token, err := GenerateToken(size)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		token2, err := GenerateToken(size)
		require.NoError(t, err)
		require.NotEqual(t, token, token2, "tokens should be unique")
	}

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		for _, size := range []int{0, -1} {
			token, err := GenerateToken(size)
			require.Error(t, err)
			require.Empty(t, token)
		}
	})
}

func TestGenerateCredential(t *testing.T) {
	t.Run("base62 alphabet only", func(t *testing.T) {
		cred, err := GenerateCredential()
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(cred), 40)

		for _, r := range cred {
			require.True(t, strings.ContainsRune(base62Alphabet, r), "unexpected rune %q", r)
		}
	})

	t.Run("unique under concurrency", func(t *testing.T) {
		const workers, perWorker = 8, 50

		var (
			mu   sync.Mutex
			seen = make(map[string]struct{})
			wg   sync.WaitGroup
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range perWorker {
					cred, err := GenerateCredential()
					if err != nil {
						t.Error(err)
						return
					}
					mu.Lock()
					seen[cred] = struct{}{}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Len(t, seen, workers*perWorker)
	})
}

func TestEncodeBase62(t *testing.T) {
	require.Equal(t, "0", encodeBase62([]byte{0}))
	require.Equal(t, "00", encodeBase62([]byte{0, 0}))
	require.Equal(t, "z", encodeBase62([]byte{61}))
	require.Equal(t, "10", encodeBase62([]byte{62}))
	require.Equal(t, "014", encodeBase62([]byte{0, 66}))
}

func TestFingerprintToken(t *testing.T) {
	fp1a := FingerprintToken("test-token-1")
	fp1b := FingerprintToken("test-token-1")
	fp2 := FingerprintToken("test-token-2")

	require.Equal(t, fp1a, fp1b, "fingerprint should be deterministic")
	require.NotEqual(t, fp1a, fp2)
	require.Len(t, fp1a, 43, "SHA-256 base64url should be 43 chars")
}
