package session

import (
	"context"
	"crypto/sha256"
	"math/bits"
	"strconv"

	"moff.io/moff-wallet/pkg/errors"
)

const (
	ChallengeTypeHashcash = "hashcash"
	maxHashcashBits       = 32
)

var ErrBadChallenge = errors.New("malformed challenge")

// HashcashSolver finds a counter such that sha256("<subject>:<counter>")
// starts with extra.difficulty zero bits. The solution is the counter.
type HashcashSolver struct{}

func (HashcashSolver) Solve(ctx context.Context, c Challenge) (string, error) {
	subject := c.Extra["subject"]
	difficulty, err := strconv.Atoi(c.Extra["difficulty"])
	if subject == "" || err != nil || difficulty < 0 || difficulty > maxHashcashBits {
		return "", errors.Wrapf(ErrBadChallenge, "hashcash subject=%q difficulty=%q", subject, c.Extra["difficulty"])
	}
	prefix := []byte(subject + ":")
	buf := make([]byte, 0, len(prefix)+20)
	for counter := uint64(0); ; counter++ {
		if counter&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		buf = strconv.AppendUint(append(buf[:0], prefix...), counter, 10)
		sum := sha256.Sum256(buf)
		if leadingZeroBits(sum[:]) >= difficulty {
			return strconv.FormatUint(counter, 10), nil
		}
	}
}

// VerifyHashcash checks a solution produced by HashcashSolver.
func VerifyHashcash(subject string, difficulty int, solution string) bool {
	sum := sha256.Sum256([]byte(subject + ":" + solution))
	return leadingZeroBits(sum[:]) >= difficulty
}

func leadingZeroBits(b []byte) int {
	n := 0
	for _, x := range b {
		if x != 0 {
			return n + bits.LeadingZeros8(x)
		}
		n += 8
	}
	return n
}
