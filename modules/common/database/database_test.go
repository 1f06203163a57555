package database

import (
	"context"
	"testing"

	"clip-wizard-server/modules/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanceledContextSkipsRequest(t *testing.T) {
	client, err := NewClient(&config.Config{
		SupabaseURL:        "http://127.0.0.1:1",
		SupabaseServiceKey: "service-key",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = client.InsertAssembly(ctx, AssemblyRecord{SessionID: "s1"})
	assert.ErrorIs(t, err, context.Canceled)

	records, err := client.ListAssemblies(ctx, "s1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, records)
}
