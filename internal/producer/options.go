package producer

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"github.com/ncubeanalytics/ingest/internal/config"
)

// buildOpts translates one ProducerConfig's generic option map (the config
// file carries broker options as flat string pairs, librdkafka-style) plus
// the optional SASL password file into franz-go client options. Unknown
// keys are ignored rather than rejected, since the option map may carry
// broker-specific knobs this translation layer doesn't need to understand.
func buildOpts(c config.ProducerConfig) ([]kgo.Opt, error) {
	opts := c.Options
	if opts == nil {
		opts = map[string]string{}
	}

	if c.SaslPasswordPath != "" {
		password, err := os.ReadFile(c.SaslPasswordPath)
		if err != nil {
			return nil, fmt.Errorf("reading sasl_password_path: %w", err)
		}
		cloned := make(map[string]string, len(opts)+1)
		for k, v := range opts {
			cloned[k] = v
		}
		cloned["sasl.password"] = string(password)
		opts = cloned
	}

	var kopts []kgo.Opt

	if brokers := opts["bootstrap.servers"]; brokers != "" {
		kopts = append(kopts, kgo.SeedBrokers(strings.Split(brokers, ",")...))
	}
	if clientID := opts["client.id"]; clientID != "" {
		kopts = append(kopts, kgo.ClientID(clientID))
	}
	if retries := opts["retries"]; retries != "" {
		n, err := strconv.Atoi(retries)
		if err != nil {
			return nil, fmt.Errorf("retries: %w", err)
		}
		kopts = append(kopts, kgo.RequestRetries(n))
	}
	if batchBytes := opts["batch.max.bytes"]; batchBytes != "" {
		n, err := strconv.Atoi(batchBytes)
		if err != nil {
			return nil, fmt.Errorf("batch.max.bytes: %w", err)
		}
		kopts = append(kopts, kgo.ProducerBatchMaxBytes(int32(n)))
	}
	if compression := opts["compression.type"]; compression != "" {
		codec, err := compressionCodec(compression)
		if err != nil {
			return nil, err
		}
		kopts = append(kopts, kgo.ProducerBatchCompression(codec))
	}

	mechanism, err := saslMechanism(opts)
	if err != nil {
		return nil, err
	}
	if mechanism != nil {
		kopts = append(kopts, kgo.SASL(mechanism))
	}

	return kopts, nil
}

func compressionCodec(name string) (kgo.CompressionCodec, error) {
	switch name {
	case "none":
		return kgo.NoCompression(), nil
	case "gzip":
		return kgo.GzipCompression(), nil
	case "snappy":
		return kgo.SnappyCompression(), nil
	case "lz4":
		return kgo.Lz4Compression(), nil
	case "zstd":
		return kgo.ZstdCompression(), nil
	default:
		return kgo.CompressionCodec{}, fmt.Errorf("unknown compression.type %q", name)
	}
}

// saslMechanism builds a sasl.Mechanism from sasl.username/sasl.password/
// sasl.mechanism, or returns nil if no credentials are set.
func saslMechanism(opts map[string]string) (sasl.Mechanism, error) {
	username := opts["sasl.username"]
	password := opts["sasl.password"]
	if username == "" && password == "" {
		return nil, nil
	}

	switch strings.ToUpper(opts["sasl.mechanism"]) {
	case "", "PLAIN":
		return plain.Auth{User: username, Pass: password}.AsMechanism(), nil
	case "SCRAM-SHA-256":
		return scram.Auth{User: username, Pass: password}.AsSha256Mechanism(), nil
	case "SCRAM-SHA-512":
		return scram.Auth{User: username, Pass: password}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("unsupported sasl.mechanism %q", opts["sasl.mechanism"])
	}
}
