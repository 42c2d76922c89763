// Command mailmerge-lambda serves mail-merge runs from AWS Lambda.
package main

import (
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/pure-golang/mailmerge/dispatch"
	"github.com/pure-golang/mailmerge/env"
	"github.com/pure-golang/mailmerge/logger"
	"github.com/pure-golang/mailmerge/mail/smtp"
	"github.com/pure-golang/mailmerge/mail/transport"
	"github.com/pure-golang/mailmerge/plaintext"
	"github.com/pure-golang/mailmerge/serverless"
)

func main() {
	var (
		logCfg       logger.Config
		transportCfg transport.Config
		smtpCfg      smtp.Config
		dispatchCfg  dispatch.Config
	)
	if err := env.InitConfig(&logCfg, &transportCfg, &smtpCfg, &dispatchCfg); err != nil {
		slog.Default().Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.InitDefault(logCfg)
	l := slog.Default()

	dialer, err := transport.NewDialer(transportCfg, smtpCfg, l)
	if err != nil {
		l.Error("failed to create mail transport", "error", err)
		os.Exit(1)
	}
	engine := dispatch.New(dialer, plaintext.New(plaintext.WithLogger(l)), dispatchCfg)

	lambda.Start(serverless.NewHandler(engine).Handle)
}
