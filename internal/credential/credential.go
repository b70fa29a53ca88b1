package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// GeneratedPasswordLength is the length of system-generated one-time passwords.
const GeneratedPasswordLength = 16

// MinPasswordLength is the minimum accepted length for a user-chosen password.
const MinPasswordLength = 10

// ErrPasswordTooShort is returned when a new password fails the length policy.
var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "!@#$%^&*-_=+"
)

var allChars = lowerChars + upperChars + digitChars + symbolChars

// GeneratePassword produces a random password for one-time distribution,
// containing at least one character from each of the lower, upper, digit and
// symbol classes. Visually ambiguous characters (0/O, 1/l/I) are excluded.
func GeneratePassword() (string, error) {
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}

	buf := make([]byte, GeneratedPasswordLength)
	for i := range buf {
		var err error
		if i < len(classes) {
			buf[i], err = randomChar(classes[i])
		} else {
			buf[i], err = randomChar(allChars)
		}
		if err != nil {
			return "", err
		}
	}

	if err := shuffle(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("generating random character: %w", err)
	}
	return set[n.Int64()], nil
}

// shuffle performs a Fisher-Yates shuffle using the CSPRNG, so the
// class-guaranteed characters do not sit at predictable positions.
func shuffle(buf []byte) error {
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("shuffling password: %w", err)
		}
		j := n.Int64()
		buf[i], buf[j] = buf[j], buf[i]
	}
	return nil
}

// HashPassword returns the bcrypt hash of the given plaintext password.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a plaintext password against a stored bcrypt hash.
// bcrypt's comparison is constant-time over the derived key.
func CheckPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// ValidateNewPassword applies the password policy for user-chosen passwords.
func ValidateNewPassword(plaintext string) error {
	if len(plaintext) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// dummyHash is a valid bcrypt hash of an unguessable throwaway value. Login
// compares against it when the account does not exist so the request costs a
// bcrypt verification either way.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("entretien-no-such-user"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// BurnVerification runs a bcrypt comparison that always fails.
func BurnVerification(plaintext string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(plaintext))
}
