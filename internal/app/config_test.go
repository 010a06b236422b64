package app

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("DB_URL", "postgres://db.example.com:5432/scores")
	t.Setenv("STORE_TIMEOUT", "3s")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, ":3000", cfg.HTTPAddr())
	require.Equal(t, ":9090", cfg.GRPCPort)
	require.Equal(t, "postgres", cfg.DBDriver)
	require.Equal(t, 3*time.Second, cfg.StoreTimeout)
	require.Equal(t, "@every 1m", cfg.StatsSchedule)
	require.False(t, cfg.DBInitSchema)
}

func TestNewConfigFromEnvRequiresDBURL(t *testing.T) {
	t.Setenv("DB_URL", "restored after the test")
	require.NoError(t, os.Unsetenv("DB_URL"))

	_, err := NewConfigFromEnv()
	require.Error(t, err)
}

func TestHTTPAddr(t *testing.T) {
	require.Equal(t, ":8080", Config{Port: "8080"}.HTTPAddr())
	require.Equal(t, ":8080", Config{Port: ":8080"}.HTTPAddr())
}

func TestDataSourceName(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{
			name: "no key",
			cfg:  Config{DBDriver: "postgres", DBURL: "postgres://app@db:5432/scores"},
			want: "postgres://app@db:5432/scores",
		},
		{
			name: "key becomes password",
			cfg:  Config{DBDriver: "postgres", DBURL: "postgres://app@db:5432/scores?sslmode=require", DBKey: "s3cret"},
			want: "postgres://app:s3cret@db:5432/scores?sslmode=require",
		},
		{
			name: "default user",
			cfg:  Config{DBDriver: "postgres", DBURL: "postgresql://db:5432/scores", DBKey: "s3cret"},
			want: "postgresql://postgres:s3cret@db:5432/scores",
		},
		{
			name: "sqlite ignores key",
			cfg:  Config{DBDriver: "sqlite3", DBURL: "scores.db", DBKey: "s3cret"},
			want: "scores.db",
		},
		{
			name:    "key without url scheme",
			cfg:     Config{DBDriver: "postgres", DBURL: "host=db dbname=scores", DBKey: "s3cret"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := tt.cfg.DataSourceName()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, dsn)
		})
	}
}
