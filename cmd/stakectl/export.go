package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"farmstake/core/events"
)

const exportPageSize = 500

type eventPage struct {
	Events []events.Record `json:"events"`
	Next   uint64          `json:"next"`
}

type parquetEvent struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	Time       string `parquet:"name=time, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Pool       string `parquet:"name=pool, type=BYTE_ARRAY, convertedtype=UTF8"`
	Account    string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount     string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	q := &eventQuery{}
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export journaled events to a parquet file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := q.normalise(); err != nil {
				return err
			}
			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			n, err := exportEvents(cmd.Context(), flags, *q, file)
			if cerr := file.Close(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d events to %s\n", n, out)
			return err
		},
	}
	bindEventFlags(cmd, q)
	cmd.Flags().StringVarP(&out, "out", "o", "events.parquet", "output file")
	return cmd
}

// exportEvents pages through the event history and writes every record.
func exportEvents(ctx context.Context, flags *rootFlags, q eventQuery, w io.Writer) (int, error) {
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(w), new(parquetEvent), 1)
	if err != nil {
		return 0, fmt.Errorf("parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	c := flags.client()
	q.Limit = exportPageSize
	total := 0
	for {
		var page eventPage
		reqCtx, cancel := context.WithTimeout(ctx, flags.Timeout)
		err := c.do(reqCtx, http.MethodGet, "/v1/events?"+q.values().Encode(), nil, &page)
		cancel()
		if err != nil {
			_ = pw.WriteStop()
			return total, err
		}
		for _, rec := range page.Events {
			if err := pw.Write(toParquetEvent(rec)); err != nil {
				_ = pw.WriteStop()
				return total, fmt.Errorf("parquet write: %w", err)
			}
			total++
		}
		if len(page.Events) == 0 || page.Next <= q.After {
			break
		}
		q.After = page.Next
	}
	if err := pw.WriteStop(); err != nil {
		return total, fmt.Errorf("parquet flush: %w", err)
	}
	return total, nil
}

func toParquetEvent(rec events.Record) *parquetEvent {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		attrs = []byte("{}")
	}
	return &parquetEvent{
		ID:         rec.ID,
		Sequence:   int64(rec.Sequence),
		Time:       rec.Time.UTC().Format(time.RFC3339),
		Type:       rec.Type,
		Pool:       rec.Attributes["pool"],
		Account:    rec.Attributes["account"],
		Amount:     rec.Attributes["amount"],
		Attributes: string(attrs),
	}
}
