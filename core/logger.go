package core

import (
	"sync"
	"time"

	"docqa/core/adapter"
	"docqa/core/utils"
	"docqa/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const DefaultAttemptLogKeep = 100

// AsyncAttemptLogger 异步调用日志记录器
type AsyncAttemptLogger struct {
	db        *gorm.DB
	logChan   chan *models.AttemptLog
	logger    *logrus.Logger
	batchSize int
	flushTime time.Duration
	keep      int
	wg        sync.WaitGroup
	quit      chan struct{}
	closeOnce sync.Once
}

// NewAsyncAttemptLogger 创建新的异步日志记录器，keep 为保留的最新记录条数
func NewAsyncAttemptLogger(db *gorm.DB, logger *logrus.Logger, keep int) *AsyncAttemptLogger {
	if keep <= 0 {
		keep = DefaultAttemptLogKeep
	}
	l := &AsyncAttemptLogger{
		db:        db,
		logChan:   make(chan *models.AttemptLog, 1000), // 缓冲 1000 条
		logger:    logger,
		batchSize: 100,             // 批量插入大小
		flushTime: 5 * time.Second, // 最长等待时间
		keep:      keep,
		quit:      make(chan struct{}),
	}
	l.startWorker()
	return l
}

// Log 提交日志到队列
func (l *AsyncAttemptLogger) Log(log *models.AttemptLog) {
	select {
	case <-l.quit:
		return
	default:
	}
	select {
	case l.logChan <- log:
	default:
		// 队列满了就丢弃，不阻塞问答流程
		l.logger.Warn("Log channel full, dropping attempt log")
	}
}

func (l *AsyncAttemptLogger) startWorker() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.workerLoop()
	}()
}

func (l *AsyncAttemptLogger) workerLoop() {
	var batch []*models.AttemptLog
	timer := time.NewTicker(l.flushTime)
	defer timer.Stop()

	for {
		select {
		case log := <-l.logChan:
			batch = append(batch, log)
			if len(batch) >= l.batchSize {
				l.flush(batch)
				batch = nil
			}
		case <-timer.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = nil
			}
		case <-l.quit:
			// 退出前取完队列里剩余的日志
			for {
				select {
				case log := <-l.logChan:
					batch = append(batch, log)
				default:
					l.flush(batch)
					return
				}
			}
		}
	}
}

// flush 批量写入数据库并更新统计
func (l *AsyncAttemptLogger) flush(logs []*models.AttemptLog) {
	if len(logs) == 0 {
		return
	}

	l.logger.Debugf("[Logger] Flushing %d attempt logs to DB...", len(logs))

	if err := l.db.CreateInBatches(logs, len(logs)).Error; err != nil {
		l.logger.Errorf("[Logger] Failed to flush logs: %v", err)
	}

	l.prune()

	type statDelta struct {
		Success      int
		Error        int
		Quota        int
		TotalLatency float64
		Requests     int
	}
	statsMap := make(map[string]*statDelta)

	for _, log := range logs {
		name := utils.ShortModelName(log.Model)
		if name == "" {
			continue
		}
		delta, exists := statsMap[name]
		if !exists {
			delta = &statDelta{}
			statsMap[name] = delta
		}
		delta.Requests++
		switch log.Outcome {
		case adapter.OutcomeOK.String():
			delta.Success++
		case adapter.OutcomeQuota.String():
			delta.Quota++
			delta.Error++
		default:
			delta.Error++
		}
		delta.TotalLatency += float64(log.Duration)
	}

	for name, delta := range statsMap {
		var stat models.ModelStats
		err := l.db.Where("model_name = ?", name).First(&stat).Error

		if err == nil {
			stat.Success += delta.Success
			stat.Error += delta.Error
			stat.QuotaErrors += delta.Quota
			stat.TotalLatency += delta.TotalLatency
			stat.TotalRequests += int64(delta.Requests)
			l.db.Save(&stat)
		} else {
			l.db.Create(&models.ModelStats{
				ModelName:     name,
				Success:       delta.Success,
				Error:         delta.Error,
				QuotaErrors:   delta.Quota,
				TotalLatency:  delta.TotalLatency,
				TotalRequests: int64(delta.Requests),
			})
		}
	}
}

// prune 只保留最新的 keep 条记录
func (l *AsyncAttemptLogger) prune() {
	var count int64
	l.db.Model(&models.AttemptLog{}).Count(&count)
	if count <= int64(l.keep) {
		return
	}
	var pivotID uint
	l.db.Model(&models.AttemptLog{}).Select("id").Order("id desc").Offset(l.keep).Limit(1).Scan(&pivotID)
	if pivotID > 0 {
		l.db.Where("id <= ?", pivotID).Delete(&models.AttemptLog{})
	}
}

// Recent 最新的调用记录
func (l *AsyncAttemptLogger) Recent(limit int) ([]models.AttemptLog, error) {
	if limit <= 0 || limit > l.keep {
		limit = l.keep
	}
	var logs []models.AttemptLog
	err := l.db.Order("id desc").Limit(limit).Find(&logs).Error
	return logs, err
}

// Stats 按模型聚合的统计
func (l *AsyncAttemptLogger) Stats() ([]models.ModelStats, error) {
	var stats []models.ModelStats
	err := l.db.Order("model_name").Find(&stats).Error
	return stats, err
}

// Close 关闭日志记录器，刷新剩余日志
func (l *AsyncAttemptLogger) Close() {
	l.closeOnce.Do(func() {
		close(l.quit)
		l.wg.Wait()
	})
}
