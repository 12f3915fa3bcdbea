package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type Command string

const (
	CmdGenerateRSAKey Command = "generate_rsa_key"
	CmdAnalyzeRSAKey  Command = "analyze_rsa_key"
)

var ErrUnknownCommand = errors.New("unknown command")

// KindUnknownCommand is the error_kind reported for ErrUnknownCommand.
const KindUnknownCommand = "UnknownCommand"

type Request struct {
	Command Command `json:"command"`
	Bits    int     `json:"bits,omitempty"`
	Key     string  `json:"key,omitempty"`
}

type Response struct {
	Command   Command      `json:"command"`
	OK        bool         `json:"ok"`
	KeyPair   *KeyPair     `json:"key_pair,omitempty"`
	Analysis  *KeyAnalysis `json:"analysis,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty"`
}

// Dispatch runs one request. Errors are reported in the response.
func (e *Engine) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{Command: req.Command}

	var err error
	switch req.Command {
	case CmdGenerateRSAKey:
		resp.KeyPair, err = e.GenerateRSAKey(ctx, req.Bits)
	case CmdAnalyzeRSAKey:
		resp.Analysis, err = e.AnalyzeRSAKey(ctx, req.Key)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
		e.log.Warn("unknown command", zap.String("command", string(req.Command)))
	}

	if err != nil {
		resp.Error = err.Error()
		resp.ErrorKind = ErrorKind(err)
		return resp
	}
	resp.OK = true
	return resp
}
