package cmd

import (
	"flag"
	"log"
	"strings"

	"cds-backend/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// SplitQueueNames parses a comma separated queue list from the environment.
func SplitQueueNames(names string) []string {
	var queues []string
	for _, name := range strings.Split(names, ",") {
		if name = strings.TrimSpace(name); name != "" {
			queues = append(queues, name)
		}
	}
	return queues
}

// CreateObjectStore picks the weight store implementation from config: an S3
// endpoint when one is configured, the local filesystem store otherwise.
func CreateObjectStore(s3Endpoint, s3Region, accessKey, secretKey, localDir string) (storage.ObjectStore, error) {
	if s3Endpoint != "" || s3Region != "" {
		return storage.NewS3ObjectStore(storage.S3ClientConfig{
			Endpoint:        s3Endpoint,
			Region:          s3Region,
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
		})
	}
	return storage.NewLocalObjectStore(localDir)
}
