// Package worker 提供一个简单的异步任务池
// 任务以闭包形式提交，通道满时降级为同步执行，保证任务不丢失
package worker

import (
	"sync"

	"go.uber.org/zap"
)

// task 异步任务（纯闭包模式）
type task struct {
	Action func()
}

// Pool 固定数量 Worker 的任务池
type Pool struct {
	name   string
	tasks  chan *task
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPool 创建并启动任务池
// workerNum: 后台协程数量
// bufferSize: 通道缓冲区大小
func NewPool(name string, workerNum, bufferSize int) *Pool {
	if workerNum <= 0 {
		workerNum = 1
	}
	p := &Pool{
		name:  name,
		tasks: make(chan *task, bufferSize),
	}
	for i := 0; i < workerNum; i++ {
		p.wg.Add(1)
		go p.startWorker()
	}
	zap.L().Info("workers started", zap.String("pool", name), zap.Int("workers", workerNum), zap.Int("buffer", bufferSize))
	return p
}

// Submit 提交异步任务
// 使用示例:
//
//	pool.Submit(func() {
//	    _ = store.Save(ctx, snapshot)
//	})
func (p *Pool) Submit(action func()) {
	if action == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		zap.L().Warn("pool closed, executing synchronously", zap.String("pool", p.name))
		p.run(action)
		return
	}
	select {
	case p.tasks <- &task{Action: action}:
	default:
		// 降级：同步执行
		zap.L().Warn("task channel full, executing synchronously", zap.String("pool", p.name))
		p.run(action)
	}
}

// Close 停止接收新任务并等待已提交的任务执行完毕
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) startWorker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(t.Action)
	}
}

// run 单个任务 panic 不影响 Worker 继续消费
func (p *Pool) run(action func()) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("worker task panic", zap.String("pool", p.name), zap.Any("recover", r))
		}
	}()
	action()
}
