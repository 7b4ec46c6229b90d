package db

import (
	"context"
	"io/ioutil"
	"strings"
	"time"

	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/pkg/validator"
	"github.com/kirsrus/telerelay/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Поддерживаемые типы баз данных
const (
	TypeSqlite   = "sqlite"
	TypePostgres = "postgres"
)

// Db обращение к базе данных. Инициируется через NewDb
type Db struct {
	ctx context.Context
	log *logrus.Entry
	db  *gorm.DB
	now func() time.Time
}

// ConfigDb конфигурация класса Db
type ConfigDb struct {
	Log *logrus.Logger
	// Тип базы данных: sqlite или postgres
	Type string `conform:"trim,lower" validate:"required,oneof=sqlite postgres"`
	// Для sqlite путь к файлу БД, для postgres строка подключения
	Dsn string `conform:"trim" validate:"required"`
	// Источник текущего времени
	Now func() time.Time
}

// NewDb конструктор класса Db. Подключается к БД и создаёт таблицу посещений
func NewDb(ctx context.Context, config *ConfigDb) (store.VisitStore, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if err := validator.Get().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "ошибка в конфигурации")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	var dialector gorm.Dialector
	switch strings.ToLower(config.Type) {
	case TypeSqlite:
		dialector = sqlite.Open(config.Dsn)
	case TypePostgres:
		dialector = postgres.Open(config.Dsn)
	default:
		return nil, errors.Errorf("неизвестный тип базы данных: %s", config.Type)
	}

	// Подключаемся к БД и запускаем миграции
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка подключения к БД")
	}
	if err = conn.AutoMigrate(Visit{}); err != nil {
		return nil, errors.Annotate(err, "ошибка миграции БД")
	}

	db := Db{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "db",
			"scope":  "store",
			"type":   config.Type,
		}),
		db:  conn,
		now: time.Now,
	}
	if config.Now != nil {
		db.now = config.Now
	}
	db.log.Info("подключение к БД установлено")

	return &db, nil
}

// InsertVisit записывает текущее время в таблицу visitas и возвращает созданную запись
func (m Db) InsertVisit(ctx context.Context) (*model.Visit, error) {
	visit := Visit{DataVisita: m.now()}
	if err := m.db.WithContext(ctx).Create(&visit).Error; err != nil {
		m.log.Errorf("ошибка записи в таблицу %s: %v", visit.TableName(), err)
		return nil, errors.Annotate(err, "ошибка добавления в БД")
	}
	res := visit.ToVisit()
	return &res, nil
}

// Close закрывает подключение к БД
func (m Db) Close() error {
	sqlDb, err := m.db.DB()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(sqlDb.Close())
}
