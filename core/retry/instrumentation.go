package retry

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-voice/core/retry"

var logger = otelslog.NewLogger(scopeName)
