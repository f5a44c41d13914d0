package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/TheMenageri3/deresearcher-program/internal/config"
)

// ConfigManager 配置管理器
// 包装数据库配置存储，提供程序策略、账本、输出三类配置
// 以及Kafka主题映射的HTTP管理接口
type ConfigManager struct {
	dbConfig *config.DatabaseConfig
	logger   *logrus.Logger
}

// NewConfigManager 创建配置管理器
func NewConfigManager(dbConfig *config.DatabaseConfig, logger *logrus.Logger) *ConfigManager {
	return &ConfigManager{
		dbConfig: dbConfig,
		logger:   logger,
	}
}

// GetConfig 获取配置
func (cm *ConfigManager) GetConfig(c *gin.Context) {
	configType := c.Param("type")
	key := c.Query("key")

	if key == "" {
		// 获取所有配置
		configs, err := cm.dbConfig.ListConfigs(configType)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "获取配置失败",
				"message": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"config_type": configType,
			"configs":     configs,
		})
		return
	}

	// 获取单个配置
	value, err := cm.dbConfig.GetConfig(configType, key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "配置不存在",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"config_type": configType,
		"key":         key,
		"value":       value,
	})
}

// UpdateConfig 更新配置
func (cm *ConfigManager) UpdateConfig(c *gin.Context) {
	configType := c.Param("type")

	var req struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "请求参数错误",
			"message": err.Error(),
		})
		return
	}

	err := cm.dbConfig.UpdateConfig(configType, req.Key, req.Value)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "更新配置失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "配置更新成功",
		"config": gin.H{
			"type":  configType,
			"key":   req.Key,
			"value": req.Value,
		},
	})
}

// GetKafkaTopics 获取Kafka主题映射
func (cm *ConfigManager) GetKafkaTopics(c *gin.Context) {
	query := `SELECT id, event_category, topic_name, is_active FROM kafka_topics ORDER BY event_category`
	rows, err := cm.dbConfig.DB.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取主题配置失败",
			"message": err.Error(),
		})
		return
	}
	defer rows.Close()

	var topics []gin.H
	for rows.Next() {
		var id int
		var category, topicName string
		var isActive bool

		err := rows.Scan(&id, &category, &topicName, &isActive)
		if err != nil {
			continue
		}

		topics = append(topics, gin.H{
			"id":             id,
			"event_category": category,
			"topic_name":     topicName,
			"is_active":      isActive,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"topics": topics,
	})
}

// AddKafkaTopic 添加Kafka主题映射
func (cm *ConfigManager) AddKafkaTopic(c *gin.Context) {
	var req struct {
		EventCategory string `json:"event_category" binding:"required"`
		TopicName     string `json:"topic_name" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "请求参数错误",
			"message": err.Error(),
		})
		return
	}

	query := `INSERT INTO kafka_topics (event_category, topic_name) VALUES ($1, $2)`
	_, err := cm.dbConfig.DB.Exec(query, req.EventCategory, req.TopicName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "添加主题失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "主题添加成功",
		"topic":   req,
	})
}

// UpdateKafkaTopic 更新Kafka主题映射
func (cm *ConfigManager) UpdateKafkaTopic(c *gin.Context) {
	topicID := c.Param("id")

	var req struct {
		EventCategory string `json:"event_category"`
		TopicName     string `json:"topic_name"`
		IsActive      bool   `json:"is_active"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "请求参数错误",
			"message": err.Error(),
		})
		return
	}

	query := `UPDATE kafka_topics SET event_category = $1, topic_name = $2, is_active = $3 WHERE id = $4`
	_, err := cm.dbConfig.DB.Exec(query, req.EventCategory, req.TopicName, req.IsActive, topicID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "更新主题失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "主题更新成功",
	})
}

// DeleteKafkaTopic 删除Kafka主题映射
func (cm *ConfigManager) DeleteKafkaTopic(c *gin.Context) {
	topicID := c.Param("id")

	query := `DELETE FROM kafka_topics WHERE id = $1`
	_, err := cm.dbConfig.DB.Exec(query, topicID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "删除主题失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "主题删除成功",
	})
}

// RegisterRoutes 注册配置管理路由
func (cm *ConfigManager) RegisterRoutes(router *gin.RouterGroup) {
	cfg := router.Group("/db-config")
	{
		cfg.GET("/:type", cm.GetConfig)
		cfg.PUT("/:type", cm.UpdateConfig)
	}

	topics := router.Group("/kafka-topics")
	{
		topics.GET("", cm.GetKafkaTopics)
		topics.POST("", cm.AddKafkaTopic)
		topics.PUT("/:id", cm.UpdateKafkaTopic)
		topics.DELETE("/:id", cm.DeleteKafkaTopic)
	}
}
