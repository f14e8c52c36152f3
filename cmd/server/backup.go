package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"turtlemanager.dev/internal/persistence/backup"
)

// buildBackupMirror returns nil unless TM_BACKUP=true.
func buildBackupMirror(dataDir string, logger *log.Logger) (*backup.Mirror, error) {
	if !envBool("TM_BACKUP", false) {
		return nil, nil
	}
	cfg := backup.ClientConfig{
		Endpoint:        strings.TrimSpace(os.Getenv("TM_BACKUP_ENDPOINT")),
		Bucket:          strings.TrimSpace(os.Getenv("TM_BACKUP_BUCKET")),
		Region:          strings.TrimSpace(os.Getenv("TM_BACKUP_REGION")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("TM_BACKUP_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("TM_BACKUP_SECRET_ACCESS_KEY")),
	}
	client, err := backup.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("TM_BACKUP=true: %w", err)
	}
	return backup.NewMirror(client, backup.Options{
		BaseDir: dataDir,
		Prefix:  os.Getenv("TM_BACKUP_PREFIX"),
		Workers: envInt("TM_BACKUP_WORKERS", 2),
	}, logger), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
