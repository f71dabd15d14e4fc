package security

import "golang.org/x/crypto/bcrypt"

// bcryptCost is fixed at 12: slow enough (~100ms) to blunt offline brute
// force, fast enough for interactive login.
const bcryptCost = 12

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored hash. Any error
// from the underlying verify routine, including a malformed hash, counts
// as a mismatch.
func VerifyPassword(hash string, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
