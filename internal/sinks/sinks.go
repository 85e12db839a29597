// Package sinks writes the session's append-only output files: the
// trade/cancel tape, LOB frames, average-balances, and per-trader
// blotters, all in the exact CSV formats spec.md §6 names. Adapted from
// the teacher's internal/eventlog/writer.go buffered-writer-over-file
// shape, generalized from one JSON-lines stream into four CSV sinks and
// optional gzip compression.
package sinks

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/dniure/BSE-IntelligentAgents/internal/market"
	"github.com/dniure/BSE-IntelligentAgents/internal/trader"
)

const flushEvery = 100

// file is the shared buffered-append-with-periodic-flush primitive
// every sink in this package is built from, per spec.md §5's "buffers
// flush every 100 lines or at session end" rule.
type file struct {
	closer io.Closer
	w      *bufio.Writer
	lines  int
}

func openFile(path string, compress bool) (*file, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sinks: create %s: %w", path, err)
	}
	if !compress {
		return &file{closer: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
	}
	gz := gzip.NewWriter(f)
	return &file{closer: multiCloser{gz, f}, w: bufio.NewWriterSize(gz, 64*1024)}, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	for _, c := range m {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (f *file) writeLine(line string) error {
	if _, err := f.w.WriteString(line); err != nil {
		return fmt.Errorf("sinks: write: %w", err)
	}
	f.lines++
	if f.lines%flushEvery == 0 {
		return f.w.Flush()
	}
	return nil
}

func (f *file) Close() error {
	if err := f.w.Flush(); err != nil {
		f.closer.Close()
		return fmt.Errorf("sinks: flush: %w", err)
	}
	return f.closer.Close()
}

// TapeSink appends trade/cancel events in spec.md §6's tape CSV format.
type TapeSink struct{ f *file }

// NewTapeSink opens path (optionally gzip-compressed) for the trade tape.
func NewTapeSink(path string, compress bool) (*TapeSink, error) {
	f, err := openFile(path, compress)
	if err != nil {
		return nil, err
	}
	return &TapeSink{f: f}, nil
}

// WriteTrade appends one `Trd, <time>, <price>` line.
func (s *TapeSink) WriteTrade(tm float64, price int) error {
	return s.f.writeLine(fmt.Sprintf("Trd, %010.3f, %d\n", tm, price))
}

// WriteCancel appends one `CAN, <time>, <qid>, <side>, <price>` line.
func (s *TapeSink) WriteCancel(tm float64, qid int64, side market.Side, price int) error {
	return s.f.writeLine(fmt.Sprintf("CAN, %010.3f, %d, %s, %d\n", tm, qid, side, price))
}

func (s *TapeSink) Close() error { return s.f.Close() }

// LOBFrameSink appends already-deduplicated LOB frame lines, as
// produced by exchange.Exchange.LOBFrameString.
type LOBFrameSink struct{ f *file }

func NewLOBFrameSink(path string, compress bool) (*LOBFrameSink, error) {
	f, err := openFile(path, compress)
	if err != nil {
		return nil, err
	}
	return &LOBFrameSink{f: f}, nil
}

// WriteFrame appends line verbatim, adding the trailing newline.
func (s *LOBFrameSink) WriteFrame(line string) error {
	return s.f.writeLine(line + "\n")
}

func (s *LOBFrameSink) Close() error { return s.f.Close() }

// BalancesSink appends one row per (trader, trade event), per spec.md
// §6's average-balances CSV header.
type BalancesSink struct{ f *file }

func NewBalancesSink(path string, compress bool) (*BalancesSink, error) {
	f, err := openFile(path, compress)
	if err != nil {
		return nil, err
	}
	if err := f.writeLine("SessionID,Time,BidPrice,AskPrice,MidPrice,Spread,TraderID,Balance,NetWorth\n"); err != nil {
		return nil, err
	}
	return &BalancesSink{f: f}, nil
}

// WriteRow appends one balances-sample row. bidPrice/askPrice are the
// snapshot's best prices as given: 0 for a side that has never held an
// order or was emptied by a cancellation, and that side's worst price
// for a side whose last order just traded away.
func (s *BalancesSink) WriteRow(sessionID string, tm float64, bidPrice, askPrice int, traderID string, balance, netWorth float64) error {
	mid := float64(bidPrice+askPrice) / 2.0
	spread := askPrice - bidPrice
	return s.f.writeLine(fmt.Sprintf("%s,%.3f,%d,%d,%.2f,%d,%s,%.2f,%.2f\n",
		sessionID, tm, bidPrice, askPrice, mid, spread, traderID, balance, netWorth))
}

func (s *BalancesSink) Close() error { return s.f.Close() }

// BlotterSink writes one per-trader CSV section, per spec.md §6's
// blotter header and "no trades" fallback line.
type BlotterSink struct{ f *file }

func NewBlotterSink(path string, compress bool) (*BlotterSink, error) {
	f, err := openFile(path, compress)
	if err != nil {
		return nil, err
	}
	if err := f.writeLine("TraderID,Time,Price,Qty,Party1,Party2\n"); err != nil {
		return nil, err
	}
	return &BlotterSink{f: f}, nil
}

// WriteTrader appends traderID's blotter entries, or a single
// "<tid>,No trades" line if it traded nothing.
func (s *BlotterSink) WriteTrader(traderID string, entries []trader.BlotterEntry) error {
	if len(entries) == 0 {
		return s.f.writeLine(fmt.Sprintf("%s,No trades\n", traderID))
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s,%.3f,%d,%d,%s,%s\n", traderID, e.Time, e.Price, e.Qty, e.Party1, e.Party2)
		if err := s.f.writeLine(line); err != nil {
			return err
		}
	}
	return nil
}

func (s *BlotterSink) Close() error { return s.f.Close() }
