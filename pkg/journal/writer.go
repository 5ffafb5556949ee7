package journal

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ordersync/internal/domain"
)

var writerLog = logrus.WithField("component", "fill_journal")

// ErrWriterClosed 写入器已关闭
var ErrWriterClosed = errors.New("journal: writer closed")

const (
	defaultWriterBuffer = 4096
	maxWriteBatch       = 128
)

// Writer 后台批量写入成交记录，实现 ports.FillRecorder
//
// RecordFill 只入队，不阻塞 worker；队列满时返回错误，成交本身仍然被引擎处理。
type Writer struct {
	journal *Journal
	ch      chan Record

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWriter 创建写入器
func NewWriter(j *Journal, buffer int) *Writer {
	if buffer <= 0 {
		buffer = defaultWriterBuffer
	}
	return &Writer{
		journal: j,
		ch:      make(chan Record, buffer),
		done:    make(chan struct{}),
	}
}

// RecordFill 实现 ports.FillRecorder
func (w *Writer) RecordFill(_ context.Context, fill domain.PhysicalFill, strategyID string) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.ch <- RecordFromFill(fill, strategyID):
		return nil
	default:
		return errors.Errorf("journal: queue full, dropping fill for order %s", fill.BrokerOrderID)
	}
}

// Run 写入循环：把已排队的记录合并成一个事务；Close 后写完剩余记录再返回
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	batch := make([]Record, 0, maxWriteBatch)
	for first := range w.ch {
		batch = append(batch[:0], first)
	collect:
		for len(batch) < maxWriteBatch {
			select {
			case r, ok := <-w.ch:
				if !ok {
					break collect
				}
				batch = append(batch, r)
			default:
				break collect
			}
		}
		w.flush(ctx, batch)
	}
}

func (w *Writer) flush(ctx context.Context, batch []Record) {
	// ctx 取消后仍需写完剩余记录
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.journal.Insert(writeCtx, batch); err != nil {
		writerLog.WithError(err).Errorf("写入 %d 条成交失败", len(batch))
		return
	}
	writerLog.Debugf("写入 %d 条成交", len(batch))
}

// Close 停止接收并等待剩余记录写完
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
