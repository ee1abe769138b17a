package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/carousel-dispenser/internal/models"
	"gorm.io/gorm"
)

// DispenseRepositoryTestSuite 出料记录仓库测试套件
type DispenseRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo *DispenseRepository
}

// SetupSuite 设置测试套件
func (suite *DispenseRepositoryTestSuite) SetupSuite() {
	suite.db = SetupTestDB()
	suite.repo = NewDispenseRepository(suite.db)
}

// TearDownSuite 清理测试套件
func (suite *DispenseRepositoryTestSuite) TearDownSuite() {
	CleanupTestDB(suite.db)
}

// SetupTest 每个测试前执行
func (suite *DispenseRepositoryTestSuite) SetupTest() {
	suite.db.Exec("DELETE FROM dispense_records")
}

// TestCreate 测试创建出料记录
func (suite *DispenseRepositoryTestSuite) TestCreate() {
	record := &models.DispenseRecord{
		SessionID:     "session-001",
		ComponentKey:  "1kohm",
		ComponentName: "1kΩ Resistor",
		Bin:           0,
		Status:        models.DispenseStatusSuccess,
		Duration:      1500,
	}

	err := suite.repo.Create(record)
	assert.NoError(suite.T(), err)
	assert.NotZero(suite.T(), record.ID)
	assert.NotZero(suite.T(), record.Timestamp)
}

// TestGetBySessionID 测试按会话ID查询
func (suite *DispenseRepositoryTestSuite) TestGetBySessionID() {
	record := &models.DispenseRecord{
		SessionID:    "session-002",
		ComponentKey: "led_red",
		Bin:          3,
		Status:       models.DispenseStatusSuccess,
	}
	suite.Require().NoError(suite.repo.Create(record))

	got, err := suite.repo.GetBySessionID("session-002")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "led_red", got.ComponentKey)
	assert.Equal(suite.T(), 3, got.Bin)

	_, err = suite.repo.GetBySessionID("missing")
	assert.ErrorIs(suite.T(), err, gorm.ErrRecordNotFound)
}

// TestUpdateInventoryResult 测试回填库存测量结果
func (suite *DispenseRepositoryTestSuite) TestUpdateInventoryResult() {
	record := &models.DispenseRecord{
		SessionID:    "session-003",
		ComponentKey: "cap_100nf",
		Bin:          2,
		Status:       models.DispenseStatusSuccess,
	}
	suite.Require().NoError(suite.repo.Create(record))

	err := suite.repo.UpdateInventoryResult("session-003", "HI", "12.3")
	assert.NoError(suite.T(), err)

	got, err := suite.repo.GetBySessionID("session-003")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "HI", got.InventoryResult)
	assert.Equal(suite.T(), "12.3", got.DistanceCM)
}

// TestQuery 测试条件查询
func (suite *DispenseRepositoryTestSuite) TestQuery() {
	records := []*models.DispenseRecord{
		{SessionID: "s1", ComponentKey: "1kohm", Bin: 0, Status: models.DispenseStatusSuccess},
		{SessionID: "s2", ComponentKey: "10kohm", Bin: 1, Status: models.DispenseStatusFailed, Message: "移动超时"},
		{SessionID: "s3", ComponentKey: "1kohm", Bin: 0, Status: models.DispenseStatusSuccess},
	}
	for _, r := range records {
		suite.Require().NoError(suite.repo.Create(r))
	}

	bin := 0
	got, total, err := suite.repo.Query(&models.DispenseQuery{Bin: &bin})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), total)
	assert.Len(suite.T(), got, 2)

	got, total, err = suite.repo.Query(&models.DispenseQuery{Status: models.DispenseStatusFailed})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), total)
	assert.Equal(suite.T(), "s2", got[0].SessionID)

	// 分页
	got, total, err = suite.repo.Query(&models.DispenseQuery{Limit: 2})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(3), total)
	assert.Len(suite.T(), got, 2)
}

// TestGetStats 测试统计信息
func (suite *DispenseRepositoryTestSuite) TestGetStats() {
	records := []*models.DispenseRecord{
		{SessionID: "s1", ComponentKey: "1kohm", Bin: 0, Status: models.DispenseStatusSuccess, Duration: 1000},
		{SessionID: "s2", ComponentKey: "10kohm", Bin: 1, Status: models.DispenseStatusSuccess, Duration: 3000},
		{SessionID: "s3", ComponentKey: "led_red", Bin: 3, Status: models.DispenseStatusFailed, Duration: 0},
	}
	for _, r := range records {
		suite.Require().NoError(suite.repo.Create(r))
	}

	stats, err := suite.repo.GetStats(nil, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(3), stats.TotalCount)
	assert.Equal(suite.T(), int64(2), stats.TotalSuccess)
	assert.Equal(suite.T(), int64(1), stats.TotalFailed)
	assert.Equal(suite.T(), int64(3000), stats.MaxDuration)
}

// TestDeleteOldRecords 测试删除旧记录
func (suite *DispenseRepositoryTestSuite) TestDeleteOldRecords() {
	old := &models.DispenseRecord{
		SessionID:    "s-old",
		ComponentKey: "1kohm",
		Bin:          0,
		Status:       models.DispenseStatusSuccess,
		CreatedAt:    time.Now().Add(-48 * time.Hour),
	}
	recent := &models.DispenseRecord{
		SessionID:    "s-new",
		ComponentKey: "1kohm",
		Bin:          0,
		Status:       models.DispenseStatusSuccess,
	}
	suite.Require().NoError(suite.repo.Create(old))
	suite.Require().NoError(suite.repo.Create(recent))

	deleted, err := suite.repo.DeleteOldRecords(time.Now().Add(-24 * time.Hour))
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), deleted)
}

// TestDispenseRepositoryTestSuite 运行测试套件
func TestDispenseRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(DispenseRepositoryTestSuite))
}
