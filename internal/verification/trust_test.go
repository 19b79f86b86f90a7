package verification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trustlessid/internal/credential"
)

func TestCalculateTrustBreakdown(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	cases := map[string]struct {
		cred credential.Credential
		want TrustBreakdown
	}{
		"active mid-life": {
			cred: credential.Credential{
				Status:            credential.StatusActive,
				IssuedAt:          now.AddDate(0, 0, -10),
				VerificationCount: 3,
			},
			want: TrustBreakdown{Base: 70, VerificationPoints: 3, AgePoints: 10, FinalScore: 83},
		},
		"brand new credential": {
			cred: credential.Credential{
				Status:   credential.StatusActive,
				IssuedAt: now,
			},
			want: TrustBreakdown{Base: 70, FinalScore: 70},
		},
		"verification points cap at 10": {
			cred: credential.Credential{
				Status:            credential.StatusActive,
				IssuedAt:          now,
				VerificationCount: 500,
			},
			want: TrustBreakdown{Base: 70, VerificationPoints: 10, FinalScore: 80},
		},
		"age points cap at 20": {
			cred: credential.Credential{
				Status:   credential.StatusActive,
				IssuedAt: now.AddDate(-5, 0, 0),
			},
			want: TrustBreakdown{Base: 70, AgePoints: 20, FinalScore: 90},
		},
		"score clamps at 100": {
			cred: credential.Credential{
				Status:            credential.StatusActive,
				IssuedAt:          now.AddDate(-5, 0, 0),
				VerificationCount: 100,
			},
			want: TrustBreakdown{Base: 70, VerificationPoints: 10, AgePoints: 20, FinalScore: 100},
		},
		"expired penalty": {
			cred: credential.Credential{
				Status:   credential.StatusExpired,
				IssuedAt: now.AddDate(0, 0, -5),
			},
			want: TrustBreakdown{Base: 70, AgePoints: 5, ExpiredPenalty: 50, FinalScore: 25},
		},
		"expired fresh credential bottoms out above zero": {
			cred: credential.Credential{
				Status:   credential.StatusExpired,
				IssuedAt: now,
			},
			want: TrustBreakdown{Base: 70, ExpiredPenalty: 50, FinalScore: 20},
		},
		"revoked keeps history": {
			cred: credential.Credential{
				Status:            credential.StatusRevoked,
				IssuedAt:          now.AddDate(0, -6, 0),
				VerificationCount: 7,
			},
			want: TrustBreakdown{Base: 70, VerificationPoints: 7, AgePoints: 20, FinalScore: 97},
		},
		"issue date in the future counts as zero days": {
			cred: credential.Credential{
				Status:   credential.StatusActive,
				IssuedAt: now.AddDate(0, 0, 3),
			},
			want: TrustBreakdown{Base: 70, FinalScore: 70},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateTrustBreakdown(tc.cred, now))
		})
	}
}

func TestTrustScoreBounds(t *testing.T) {
	now := time.Now()
	statuses := []credential.Status{credential.StatusActive, credential.StatusRevoked, credential.StatusExpired}
	for _, status := range statuses {
		for _, count := range []int{0, 1, 10, 1000} {
			for _, age := range []int{-3, 0, 1, 19, 20, 3650} {
				cred := credential.Credential{
					Status:            status,
					IssuedAt:          now.AddDate(0, 0, -age),
					VerificationCount: count,
				}
				b := CalculateTrustBreakdown(cred, now)
				assert.GreaterOrEqual(t, b.FinalScore, 0)
				assert.LessOrEqual(t, b.FinalScore, 100)
			}
		}
	}
}
