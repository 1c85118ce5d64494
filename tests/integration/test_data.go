//go:build integration

package integration

import (
	"fmt"
	"sync/atomic"
)

var accountSeq atomic.Int64

// TestAccount generates unique registration data for one test
func TestAccount(suffix string) (email, nickname, password string) {
	n := accountSeq.Add(1)
	email = fmt.Sprintf("player-%d-%s@example.com", n, suffix)
	nickname = fmt.Sprintf("p%d%s", n, suffix)
	if len(nickname) > 20 {
		nickname = nickname[:20]
	}
	password = "TestPassword123!"
	return
}
