package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const maxOrderNumberAttempts = 3

var orderNumberSpace = big.NewInt(10_000)

// newOrderNumber returns ORD-<UTC YYYYMMDD>-<4 random digits>.
func newOrderNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, orderNumberSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate order number: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%04d", now.UTC().Format("20060102"), n.Int64()), nil
}
