package stakingd

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"farmstake/native/staking"
)

func TestOperationsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	env := newTestEnv(t)

	owner, err := staking.ParseAccount(accountA)
	require.NoError(t, err)
	_, err = env.svc.Mint("farm/1", owner, uint256.NewInt(5))
	require.NoError(t, err)
	_, err = env.svc.Stake(owner, 1, uint256.NewInt(50))
	require.Error(t, err)

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		spans[span.Name()] = span
	}
	mint, ok := spans["staking.mint"]
	require.True(t, ok, "mint span missing")
	require.NotEqual(t, codes.Error, mint.Status().Code)
	require.Contains(t, mint.Attributes(), attribute.String("staking.operation", "mint"))

	stake, ok := spans["staking.stake"]
	require.True(t, ok, "stake span missing")
	require.Equal(t, codes.Error, stake.Status().Code)
	require.Equal(t, "transfer_failed", stake.Status().Description)
}

func TestAssetIDsAreNormalized(t *testing.T) {
	env := newTestEnv(t)
	owner, err := staking.ParseAccount(accountB)
	require.NoError(t, err)

	_, err = env.svc.Mint("ｆａｒｍ／２", owner, uint256.NewInt(7))
	require.NoError(t, err)
	balance, err := env.svc.Balance("farm/2", owner)
	require.NoError(t, err)
	require.Equal(t, uint64(7), balance.Uint64())

	// The fullwidth spelling of a staked class is still reserved.
	err = env.svc.Recover(staking.Authorization{Subject: "ops", Scopes: []string{env.cfg.Admin.Scope}}, "ｆａｒｍ／２", uint256.NewInt(1), owner)
	require.ErrorIs(t, err, staking.ErrReservedAsset)
}
