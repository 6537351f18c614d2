package services

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/license-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/license-backend/internal/repository"
)

var couponCSVHeader = []string{
	"couponId", "code", "status", "durationDays", "isFirstCode", "createdAt",
	"redeemedAt", "expiresAt", "issuedByName", "issuedByEmail", "redeemedByName",
	"redeemedByEmail", "revokedAt", "revokedByName", "revokedByEmail", "revokeReason",
}

// ExportCouponsCSV renders every coupon matching query, ignoring pagination.
func (s *LicenseService) ExportCouponsCSV(ctx context.Context, query repository.AdminQuery) ([]byte, error) {
	if err := checkRanges(query.CouponFilter); err != nil {
		return nil, err
	}
	rows, err := s.store.Coupons().ExportAdmin(ctx, query)
	if err != nil {
		return nil, apperr.Internal(err, "failed to export coupons")
	}

	var buf bytes.Buffer
	writeCSVRow(&buf, couponCSVHeader)
	for i := range rows {
		writeCSVRow(&buf, couponRecord(&rows[i]))
	}
	return buf.Bytes(), nil
}

// ExportStatsCSV renders Stats as metric,value rows.
func (s *LicenseService) ExportStatsCSV(ctx context.Context) ([]byte, error) {
	st, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writeCSVRow(&buf, []string{"metric", "value"})
	for _, m := range []struct {
		name  string
		value int64
	}{
		{"total", st.Total},
		{"valid", st.Valid},
		{"invalid", st.Invalid},
		{"redeemed", st.Redeemed},
		{"revoked", st.Revoked},
		{"available", st.Available},
		{"activeLicenses", st.ActiveLicenses},
		{"expiredLicenses", st.ExpiredLicenses},
	} {
		writeCSVRow(&buf, []string{m.name, strconv.FormatInt(m.value, 10)})
	}
	return buf.Bytes(), nil
}

func couponRecord(c *repository.AdminCoupon) []string {
	return []string{
		c.ID.String(),
		c.Code,
		c.Status(),
		strconv.Itoa(c.Duration),
		strconv.FormatBool(c.IsFirstCode),
		c.CreatedAt.UTC().Format(time.RFC3339),
		csvTime(c.RedeemedAt),
		csvTime(c.ExpiresAt),
		infoName(c.Issuer),
		infoEmail(c.Issuer),
		infoName(c.Redeemer),
		infoEmail(c.Redeemer),
		csvTime(c.RevokedAt),
		infoName(c.Revoker),
		infoEmail(c.Revoker),
		c.RevokeReason,
	}
}

// writeCSVRow quotes every field, doubling embedded quotes.
func writeCSVRow(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}

func csvTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func infoName(u *repository.UserInfo) string {
	if u == nil {
		return ""
	}
	return u.Name
}

func infoEmail(u *repository.UserInfo) string {
	if u == nil {
		return ""
	}
	return u.Email
}
