// Package training turns recorded replays into model training rows: the
// encoded board, the move that was played from it and a value target.
package training

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/snekgrid/game"
	"github.com/brensch/snekgrid/inference"
	"github.com/brensch/snekgrid/store"
)

// Horizon is how many ticks ahead the value target looks for food or death.
const Horizon = 20

type Row struct {
	SessionID string `parquet:"session_id,dict"`
	Tick      int64  `parquet:"tick"`

	// X is the float32 input tensor, little endian, [XC, XH, XW].
	X []byte `parquet:"x"`

	Policy int32 `parquet:"policy"`
	// The one-hot policy is stored as scalar columns for readers that
	// struggle with LIST<FLOAT>.
	PolicyP0 float32 `parquet:"policy_p0"`
	PolicyP1 float32 `parquet:"policy_p1"`
	PolicyP2 float32 `parquet:"policy_p2"`
	PolicyP3 float32 `parquet:"policy_p3"`
	Value    float32 `parquet:"value"`

	XC int32 `parquet:"x_c"`
	XH int32 `parquet:"x_h"`
	XW int32 `parquet:"x_w"`

	Source string `parquet:"source,dict"`
}

const schemaVersion = "snekgrid_training_row_v1"

// Examples builds training rows from one session's replay rows, which must
// be sorted by tick. The move for a row is the heading of the row after
// it, so the last row and game-over rows yield nothing.
func Examples(rows []store.TickRow, w, h int) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for i := 0; i+1 < len(rows); i++ {
		row := rows[i]
		if row.Phase == game.PhaseGameOver.String() {
			continue
		}
		snap, err := row.Snapshot()
		if err != nil {
			return nil, err
		}
		policy := rows[i+1].Direction
		if policy < 0 || policy >= inference.PolicySize {
			return nil, fmt.Errorf("invalid policy (=%d) for session=%s tick=%d", policy, row.SessionID, rows[i+1].Tick)
		}
		var probs [inference.PolicySize]float32
		probs[policy] = 1

		out = append(out, Row{
			SessionID: row.SessionID,
			Tick:      row.Tick,
			X:         floatsToBytes(inference.EncodeSnapshot(snap, w, h)),
			Policy:    policy,
			PolicyP0:  probs[0],
			PolicyP1:  probs[1],
			PolicyP2:  probs[2],
			PolicyP3:  probs[3],
			Value:     valueTarget(rows[i+1:]),
			XC:        inference.Channels,
			XH:        int32(h),
			XW:        int32(w),
			Source:    row.Source,
		})
	}
	return out, nil
}

// valueTarget is +1 when the snake eats within Horizon ticks, -1 when it
// dies first and 0 when neither happens.
func valueTarget(ahead []store.TickRow) float32 {
	for i := 0; i < len(ahead) && i < Horizon; i++ {
		switch ahead[i].Outcome {
		case game.OutcomeFed.String():
			return 1
		case game.OutcomeGameOver.String():
			return -1
		}
	}
	return 0
}

func floatsToBytes(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

// BytesToFloats decodes Row.X.
func BytesToFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// ConvertFile streams a replay or batch file, groups its rows by session and
// writes the training rows to outPath through a temp file. Boards that are
// not w×h are skipped. Nothing is written when no row converts.
func ConvertFile(inPath, outPath string, w, h int) (int, error) {
	sessions, err := readSessions(inPath, w, h)
	if err != nil {
		return 0, err
	}

	outTmp := outPath + ".tmp"
	_ = os.Remove(outTmp)
	outF, err := os.OpenFile(outTmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	writer := parquet.NewGenericWriter[Row](
		outF,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	writer.SetKeyValueMetadata("schema", schemaVersion)

	rowsWritten := 0
	fail := func(err error) (int, error) {
		_ = writer.Close()
		_ = outF.Close()
		_ = os.Remove(outTmp)
		return 0, err
	}
	for _, rows := range sessions {
		examples, err := Examples(rows, w, h)
		if err != nil {
			return fail(err)
		}
		if len(examples) == 0 {
			continue
		}
		if _, err := writer.Write(examples); err != nil {
			return fail(err)
		}
		rowsWritten += len(examples)
	}

	if err := writer.Close(); err != nil {
		return fail(err)
	}
	if err := outF.Sync(); err != nil {
		_ = outF.Close()
		_ = os.Remove(outTmp)
		return 0, err
	}
	if err := outF.Close(); err != nil {
		_ = os.Remove(outTmp)
		return 0, err
	}
	if rowsWritten == 0 {
		_ = os.Remove(outTmp)
		return 0, nil
	}
	if err := os.Rename(outTmp, outPath); err != nil {
		_ = os.Remove(outTmp)
		return 0, err
	}
	return rowsWritten, nil
}

// readSessions returns the w×h sessions of inPath in first-seen order, each
// sorted by tick.
func readSessions(inPath string, w, h int) ([][]store.TickRow, error) {
	inF, err := os.Open(inPath)
	if err != nil {
		return nil, err
	}
	defer inF.Close()

	reader := parquet.NewGenericReader[store.TickRow](inF)
	defer reader.Close()

	index := make(map[string]int)
	var sessions [][]store.TickRow
	for {
		// Fresh rows each read: the reader may reuse slice capacity.
		buf := make([]store.TickRow, 256)
		n, err := reader.Read(buf)
		for _, row := range buf[:n] {
			if row.Width != int32(w) || row.Height != int32(h) {
				continue
			}
			i, ok := index[row.SessionID]
			if !ok {
				i = len(sessions)
				index[row.SessionID] = i
				sessions = append(sessions, nil)
			}
			sessions[i] = append(sessions[i], row)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	for _, rows := range sessions {
		sort.Slice(rows, func(a, b int) bool { return rows[a].Tick < rows[b].Tick })
	}
	return sessions, nil
}
