package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer abc ,broken, =nokey,x-tenant=creatorpay")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "creatorpay",
	}, headers)
}

func TestInitWithoutExportersIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "ledgerd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), Config{Traces: true})
	require.Error(t, err)

	_, err = Init(context.Background(), Config{ServiceName: "ledgerd", Traces: true, SampleRatio: 1.5})
	require.Error(t, err)
}
