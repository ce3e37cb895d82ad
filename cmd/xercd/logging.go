package xercd

import (
	"fmt"
	"os"
	"unicode"

	ipfslog "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/xerc1155/xchain/pkg/node"
)

// consoleEncoder replaces control characters so that attacker-controlled strings (chain ids, fee payers, ack data)
// cannot forge log lines.
type consoleEncoder struct {
	zapcore.Encoder
}

func (e consoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf, err := e.Encoder.EncodeEntry(entry, fields)
	if err != nil {
		return nil, err
	}

	b := buf.Bytes()
	for i := range b {
		if unicode.IsControl(rune(b[i])) && !unicode.IsSpace(rune(b[i])) {
			b[i] = '\x1A' // Substitute character
		}
	}

	return buf, nil
}

func (e consoleEncoder) Clone() zapcore.Encoder {
	return consoleEncoder{e.Encoder.Clone()}
}

// newLogger builds the root logger. level uses go-log level names (debug, info, warn, error, ...).
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := ipfslog.LevelFromString(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	// Keep any go-log based dependency at the same level as our own logs.
	ipfslog.SetAllLoggers(lvl)

	return zap.New(zapcore.NewCore(
		consoleEncoder{zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())},
		zapcore.AddSync(zapcore.Lock(os.Stderr)),
		zap.NewAtomicLevelAt(zapcore.Level(lvl))),
		zap.Hooks(node.CountLogEntries),
	), nil
}
