package model

import (
	"time"
)

const (
	TableNameChat       = "chat"
	TableNameChatRecord = "chat_record"
	TableNameChatLog    = "chat_log"
)

// 会话来源
const (
	OriginPage      int32 = 0
	OriginMCP       int32 = 1
	OriginAssistant int32 = 2
)

// Chat 会话，一个会话包含多条问答记录
type Chat struct {
	ID                  int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OID                 int64      `gorm:"column:oid;not null;default:1;index:idx_chat_oid" json:"oid"`
	CreateBy            int64      `gorm:"column:create_by;index:idx_chat_create_by" json:"create_by"`
	CreateTime          *time.Time `gorm:"column:create_time" json:"create_time"`
	Brief               string     `gorm:"column:brief;type:varchar(64)" json:"brief"`
	Datasource          *int64     `gorm:"column:datasource" json:"datasource"`
	EngineType          string     `gorm:"column:engine_type;type:varchar(64)" json:"engine_type"`
	Origin              int32      `gorm:"column:origin;default:0" json:"origin"`
	RecommendedQuestion *string    `gorm:"column:recommended_question;type:text" json:"recommended_question"`
	RecommendedGenerate bool       `gorm:"column:recommended_generate;default:false" json:"recommended_generate"`
}

func (*Chat) TableName() string {
	return TableNameChat
}

// ChatRecord 一次提问的全部产物，按阶段逐步填充
type ChatRecord struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ChatID     int64      `gorm:"column:chat_id;not null;index:idx_record_chat_id" json:"chat_id"`
	AiModalID  *int64     `gorm:"column:ai_modal_id" json:"ai_modal_id"`
	FirstChat  bool       `gorm:"column:first_chat;default:false" json:"first_chat"`
	CreateTime *time.Time `gorm:"column:create_time" json:"create_time"`
	FinishTime *time.Time `gorm:"column:finish_time" json:"finish_time"`
	CreateBy   int64      `gorm:"column:create_by" json:"create_by"`
	Datasource *int64     `gorm:"column:datasource" json:"datasource"`
	EngineType string     `gorm:"column:engine_type;type:varchar(64)" json:"engine_type"`
	Question   string     `gorm:"column:question;type:text" json:"question"`
	// SQL 生成
	SQLAnswer           string `gorm:"column:sql_answer;type:text" json:"sql_answer"`
	SQLReasoningContent string `gorm:"column:sql_reasoning_content;type:text" json:"sql_reasoning_content"`
	SQL                 string `gorm:"column:sql;type:text" json:"sql"`
	// SQL 执行
	SQLExecResult string `gorm:"column:sql_exec_result;type:text" json:"sql_exec_result"`
	Data          string `gorm:"column:data;type:text" json:"data"`
	// 图表
	ChartAnswer           string `gorm:"column:chart_answer;type:text" json:"chart_answer"`
	ChartReasoningContent string `gorm:"column:chart_reasoning_content;type:text" json:"chart_reasoning_content"`
	Chart                 string `gorm:"column:chart;type:text" json:"chart"`
	// 分析 / 预测
	Analysis                 string `gorm:"column:analysis;type:text" json:"analysis"`
	AnalysisReasoningContent string `gorm:"column:analysis_reasoning_content;type:text" json:"analysis_reasoning_content"`
	Predict                  string `gorm:"column:predict;type:text" json:"predict"`
	PredictReasoningContent  string `gorm:"column:predict_reasoning_content;type:text" json:"predict_reasoning_content"`
	PredictData              string `gorm:"column:predict_data;type:text" json:"predict_data"`
	// 推荐问题
	RecommendedQuestionAnswer string `gorm:"column:recommended_question_answer;type:text" json:"recommended_question_answer"`
	RecommendedQuestion       string `gorm:"column:recommended_question;type:text" json:"recommended_question"`
	// 状态
	Finish bool   `gorm:"column:finish;default:false" json:"finish"`
	Error  string `gorm:"column:error;type:text" json:"error"`
	// 关联关系，只允许设置一次
	AnalysisRecordID   *int64 `gorm:"column:analysis_record_id" json:"analysis_record_id"`
	PredictRecordID    *int64 `gorm:"column:predict_record_id" json:"predict_record_id"`
	RegenerateRecordID *int64 `gorm:"column:regenerate_record_id" json:"regenerate_record_id"`
}

func (*ChatRecord) TableName() string {
	return TableNameChatRecord
}

// HasChart 是否已生成图表
func (r *ChatRecord) HasChart() bool {
	return r.Chart != ""
}

// 操作类型
const (
	OperateGenerateSQL          = "GENERATE_SQL"
	OperateGenerateChart        = "GENERATE_CHART"
	OperateAnalysis             = "ANALYSIS"
	OperatePredictData          = "PREDICT_DATA"
	OperateRecommendedQuestions = "GENERATE_RECOMMENDED_QUESTIONS"
)

// ChatLog 单次大模型调用日志
type ChatLog struct {
	ID               int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Type             string     `gorm:"column:type;type:varchar(32);default:chat" json:"type"`
	Operate          string     `gorm:"column:operate;type:varchar(64)" json:"operate"`
	PID              int64      `gorm:"column:pid;index:idx_chat_log_pid" json:"pid"`
	AiModalID        *int64     `gorm:"column:ai_modal_id" json:"ai_modal_id"`
	BaseModal        string     `gorm:"column:base_modal;type:varchar(255)" json:"base_modal"`
	Messages         string     `gorm:"column:messages;type:text" json:"messages"`
	ReasoningContent string     `gorm:"column:reasoning_content;type:text" json:"reasoning_content"`
	StartTime        *time.Time `gorm:"column:start_time" json:"start_time"`
	FinishTime       *time.Time `gorm:"column:finish_time" json:"finish_time"`
	TokenUsage       string     `gorm:"column:token_usage;type:text" json:"token_usage"`
	Error            string     `gorm:"column:error;type:text" json:"error"`
}

func (*ChatLog) TableName() string {
	return TableNameChatLog
}
