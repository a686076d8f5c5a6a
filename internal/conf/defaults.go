// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "reduced-predictor")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "reduced-predictor.log")

	viper.SetDefault("identification.detectorconfidencefloor", 0.5)
	viper.SetDefault("identification.topk", 5)
	viper.SetDefault("identification.minsimilarity", 0.35)
	viper.SetDefault("identification.highconfidence", 0.82)
	viper.SetDefault("identification.separationmargin", 0.12)

	viper.SetDefault("oracle.endpoint", "http://localhost:8000")
	viper.SetDefault("oracle.model", "qwen2.5-vl-7b-instruct")
	viper.SetDefault("oracle.apikey", "")
	viper.SetDefault("oracle.timeout", 30*time.Second)
	viper.SetDefault("oracle.maxattempts", 3)
	viper.SetDefault("oracle.initialbackoff", 500*time.Millisecond)

	viper.SetDefault("catalog.path", "catalog.json")
	viper.SetDefault("catalog.dimension", 0)

	viper.SetDefault("training.minsamples", 50)
	viper.SetDefault("training.retraininterval", 24*time.Hour)
	viper.SetDefault("training.sampledelta", 500)
	viper.SetDefault("training.holdoutfraction", 0.2)
	viper.SetDefault("training.windowdays", 7)
	viper.SetDefault("training.epochs", 200)
	viper.SetDefault("training.learningrate", 0.1)

	viper.SetDefault("prediction.cachettl", 5*time.Minute)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "detections.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "predictor")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "predictor")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
}
