package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSVRowQuotesEverything(t *testing.T) {
	var buf bytes.Buffer
	writeCSVRow(&buf, []string{"plain", `say "hi"`, "", "a,b"})
	assert.Equal(t, `"plain","say ""hi""","","a,b"`+"\n", buf.String())
}

func TestExportCouponsCSV(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := env.createPair(t, 30)
	_, err := env.license.RevokeCoupon(ctx, pair.SecondCoupon.ID.String(), &dto.ReasonRequest{Reason: `code "leaked"`}, env.admin.ID)
	require.NoError(t, err)

	out, err := env.license.ExportCouponsCSV(ctx, repository.AdminQuery{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], `"couponId","code","status","durationDays"`))
	assert.True(t, strings.HasSuffix(lines[0], `"revokedByEmail","revokeReason"`))

	var revokedLine string
	for _, l := range lines[1:] {
		if strings.Contains(l, pair.SecondCoupon.Code) {
			revokedLine = l
		}
	}
	require.NotEmpty(t, revokedLine)
	assert.Contains(t, revokedLine, `"revoked","30","false"`)
	assert.Contains(t, revokedLine, `"Admin","admin@example.com"`)
	assert.True(t, strings.HasSuffix(revokedLine, `"code ""leaked"""`))
}

func TestExportCouponsCSVRespectsFilter(t *testing.T) {
	env := newTestEnv(t)
	env.createPair(t, 30)

	out, err := env.license.ExportCouponsCSV(context.Background(), repository.AdminQuery{
		CouponFilter: repository.CouponFilter{Status: repository.StatusRedeemed},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out), "\n"))
}

func TestExportStatsCSV(t *testing.T) {
	env := newTestEnv(t)
	env.createPair(t, 30)

	out, err := env.license.ExportStatsCSV(context.Background())
	require.NoError(t, err)
	s := string(out)
	assert.True(t, strings.HasPrefix(s, `"metric","value"`+"\n"))
	assert.Contains(t, s, `"total","2"`)
	assert.Contains(t, s, `"available","2"`)
	assert.Contains(t, s, `"expiredLicenses","0"`)
}
