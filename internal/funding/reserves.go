package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/flash_settlement/internal/authority"
	"github.com/congo-pay/flash_settlement/internal/config"
	"github.com/congo-pay/flash_settlement/internal/ledger"
)

// ProvisionReserves opens every configured reserve account under the program authority
// and seeds its liquidity once. It is safe to call on every startup.
func ProvisionReserves(ctx context.Context, l ledger.Ledger, program *authority.ProgramAuthority, reserves []config.Reserve, logger *slog.Logger) error {
	if program == nil {
		return fmt.Errorf("program authority is required")
	}
	for _, r := range reserves {
		if err := l.OpenAccount(ctx, ledger.Account{Code: r.Code, Owner: program.Identity(), Asset: r.Asset}); err != nil {
			return fmt.Errorf("open reserve %s: %w", r.Code, err)
		}
		if r.Liquidity == 0 {
			continue
		}
		res, err := l.Issue(ctx, r.Code, "provision:"+r.Code, r.Liquidity)
		switch {
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			continue
		case err != nil:
			return fmt.Errorf("seed reserve %s: %w", r.Code, err)
		}
		if logger != nil {
			logger.Info("reserve provisioned",
				slog.String("account", r.Code),
				slog.String("asset", r.Asset),
				slog.Uint64("balance", res.Balance),
			)
		}
	}
	return nil
}
