package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateRecoveryCode(t *testing.T) {
	t.Parallel()

	code, err := GenerateRecoveryCode()
	require.NoError(t, err)
	require.Len(t, code, RecoveryCodeGroups*RecoveryCodeGroupLen+RecoveryCodeGroups-1)
	require.True(t, LooksLikeRecoveryCode(code), "generated code %q should match its own shape", code)
}

func TestGenerateRecoveryCodesDistinct(t *testing.T) {
	t.Parallel()

	codes, err := GenerateRecoveryCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := make(map[string]struct{})
	for _, c := range codes {
		_, dup := seen[c]
		require.False(t, dup, "duplicate code %q", c)
		seen[c] = struct{}{}
	}
}

func TestLooksLikeRecoveryCode(t *testing.T) {
	t.Parallel()

	require.True(t, LooksLikeRecoveryCode("ABCD-1234-WXYZ"))
	require.True(t, LooksLikeRecoveryCode("  abcd-1234-wxyz "), "normalization should handle case and whitespace")
	require.False(t, LooksLikeRecoveryCode("123456"), "TOTP-shaped input is not a recovery code")
	require.False(t, LooksLikeRecoveryCode("ABCD-1234"))
	require.False(t, LooksLikeRecoveryCode("ABCD-1234-WXYZ-0000"))
	require.False(t, LooksLikeRecoveryCode("ABIL-1234-WXYZ"), "I and L are not in the alphabet")
}

func TestHashRecoveryCode(t *testing.T) {
	t.Parallel()

	salt, err := GenerateSalt()
	require.NoError(t, err)

	t.Run("deterministic per salt", func(t *testing.T) {
		require.Equal(t, HashRecoveryCode(salt, "ABCD-1234-WXYZ"), HashRecoveryCode(salt, "ABCD-1234-WXYZ"))
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		require.Equal(t, HashRecoveryCode(salt, "ABCD-1234-WXYZ"), HashRecoveryCode(salt, " abcd-1234-wxyz "))
	})

	t.Run("different salts diverge", func(t *testing.T) {
		other, err := GenerateSalt()
		require.NoError(t, err)
		require.NotEqual(t, HashRecoveryCode(salt, "ABCD-1234-WXYZ"), HashRecoveryCode(other, "ABCD-1234-WXYZ"))
	})
}

func TestPasswordRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.Contains(t, hash, "$argon2id$v=19$")

	require.NoError(t, VerifyPassword("correct horse battery staple", hash))
	require.ErrorIs(t, VerifyPassword("wrong password", hash), ErrPasswordMismatch)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	t.Parallel()

	require.Error(t, VerifyPassword("anything", "not-a-hash"))
	require.Error(t, VerifyPassword("anything", "$bcrypt$v=19$m=1,t=1,p=1$AAAA$BBBB"))
}
