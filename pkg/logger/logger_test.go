package logger_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reels/pkg/logger"
)

var _ = Describe("NewLoggerWithWriters", func() {
	It("writes info logs to the given writer", func() {
		var buf bytes.Buffer
		log := logger.NewLoggerWithWriters(false, &buf)

		log.Info("hello from the logger")
		Expect(buf.String()).To(ContainSubstring("hello from the logger"))
		Expect(buf.String()).To(ContainSubstring("INFO"))
	})

	It("suppresses debug logs unless debug is enabled", func() {
		var buf bytes.Buffer
		log := logger.NewLoggerWithWriters(false, &buf)

		log.Debug("quiet")
		Expect(buf.String()).To(BeEmpty())
	})

	It("emits debug logs when debug is enabled", func() {
		var buf bytes.Buffer
		log := logger.NewLoggerWithWriters(true, &buf)

		log.Debug("loud")
		Expect(buf.String()).To(ContainSubstring("loud"))
	})

	It("fans out to multiple writers", func() {
		var a, b bytes.Buffer
		log := logger.NewLoggerWithWriters(false, &a, &b)

		log.Info("both places")
		Expect(a.String()).To(ContainSubstring("both places"))
		Expect(b.String()).To(ContainSubstring("both places"))
	})
})
