package config

type (

	// Config конфигурация программы
	Config struct {

		// Описание логирования
		Log struct {

			// Путь к файлу лога
			Path string

			// Имя файла логирования
			Filename string `default:"telerelay.log"`

			// Уровень логирования
			Level string `required:"true" default:"info"`

			// Выводить лог только на консоль
			Console bool `default:"false"`
		}

		// Обслуживание WEB-сервера
		Http struct {

			// Порт WEB-сервера
			Port uint `required:"true" default:"3000"`

			// Ёмкость очереди каждого подписчика потока замеров
			StreamBuffer uint `default:"16"`
		}

		// Хранилище замеров в памяти
		Store struct {

			// Сколько последних замеров хранить
			Capacity int `default:"100"`

			// Сколько последних замеров отдавать на панель
			DashboardHistory int `default:"10"`
		}

		// Пороги, с которыми стартует сервис
		Thresholds struct {

			// Максимальная температура, °C
			TemperatureMax float64 `default:"30.0"`

			// Минимальная влажность, %
			HumidityMin float64 `default:"40.0"`

			// Минимальная освещённость, lux
			LuminosityMin float64 `default:"200.0"`

			// Минимальное расстояние, cm
			DistanceMin float64 `default:"5.0"`

			// Максимальное расстояние, cm
			DistanceMax float64 `default:"50.0"`
		}

		// Описываем подключение к базе данных для проверки связи
		Db struct {

			// Не подключаться к базе данных
			Disabled bool `default:"false"`

			// Тип базы данных (sqlite, postgres)
			Type string `default:"sqlite"`

			// Путь к расположению базы данных sqlite
			Path string

			// Имя файла базы данных sqlite
			Filename string `default:"telerelay.sqlite"`

			// Строка подключения к postgres, например
			// "host=database user=postgres password=123456 dbname=molha_me_db port=5432 sslmode=disable"
			Dsn string

			// Время жизни результата последней проверки связи (в секундах)
			ProbeCache uint `default:"600"`
		}

		// Приём замеров через MQTT
		Mqtt struct {

			// Подписываться ли на брокер
			Enabled bool `default:"false"`

			// Адрес брокера, например tcp://127.0.0.1:1883
			Broker string `default:"tcp://127.0.0.1:1883"`

			// Топик с замерами
			Topic string `default:"molhame/+/data"`

			// Идентификатор клиента
			ClientID string `default:"telerelay"`

			// Уровень QoS подписки
			Qos uint8 `default:"0"`
		}

		// Приём замеров из WebSocket-лент шлюзов датчиков
		Feed struct {

			// Подключаться ли к лентам
			Enabled bool `default:"false"`

			// Адреса лент, например ws://192.168.10.10:8000/feed
			URLs []string
		}

		// Пересылка замеров в Kafka
		Kafka struct {

			// Пересылать ли замеры
			Enabled bool `default:"false"`

			// Адреса брокеров
			Brokers []string

			// Топик для замеров
			Topic string `default:"molhame.readings"`

			// Ёмкость очереди на отправку
			QueueCapacity uint `default:"256"`
		}

		// Публикация изменений порогов в NATS
		Nats struct {

			// Публиковать ли изменения порогов
			Enabled bool `default:"false"`

			// Адрес сервера NATS
			URL string `default:"nats://127.0.0.1:4222"`

			// Тема для порогов
			Subject string `default:"molhame.thresholds"`
		}

		// Метрики Prometheus
		Metrics struct {

			// Не отдавать метрики
			Disabled bool `default:"false"`

			// Путь метрик на WEB-сервере
			Path string `default:"/metrics"`
		}
	}
)
