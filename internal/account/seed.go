package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"cleancity/server/internal/model"
	"cleancity/server/internal/store"
)

// SeedSecretCodes installs the per-city bootstrap codes from a
// comma-separated list of "city:CODE" pairs. Existing codes are left
// untouched, so seeding at every startup never resets an already-consumed code.
func SeedSecretCodes(ctx context.Context, st store.Store, seed string) (int, error) {
	seeded := 0
	for _, pair := range strings.Split(seed, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		city, code, ok := strings.Cut(pair, ":")
		city = strings.TrimSpace(city)
		code = strings.TrimSpace(code)
		if !ok || city == "" || code == "" {
			return seeded, fmt.Errorf("malformed secret code seed entry %q", pair)
		}

		_, err := st.GetCodeByValue(ctx, code)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return seeded, err
		}
		err = st.CreateSecretCode(ctx, model.AdminSecretCode{
			ID:   uuid.NewString(),
			Code: code,
			City: city,
		})
		if err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}
