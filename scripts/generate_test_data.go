package main

import (
	"fmt"
	"log"
	"time"

	"github.com/pacelog/internal/calendar"
	"github.com/pacelog/internal/config"
	"github.com/pacelog/internal/db"
	"github.com/pacelog/internal/logger"
	"github.com/pacelog/internal/service"
)

// 测试数据生成器
func main() {
	// 初始化数据库
	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	appLogger := logger.NewNop()

	fmt.Println("开始生成测试数据...")

	catalog := service.NewCatalogService(db.DB)

	// 创建习惯模板
	run, err := catalog.CreateHabitTemplate(service.HabitTemplateInput{
		Name:        "晨跑",
		Description: "每天 5 公里",
		TypeTag:     "健康",
	})
	if err != nil {
		log.Fatal("创建习惯模板失败:", err)
	}
	meditate, err := catalog.CreateHabitTemplate(service.HabitTemplateInput{
		Name:        "冥想",
		Description: "晚间 10 分钟",
		TypeTag:     "心理",
	})
	if err != nil {
		log.Fatal("创建习惯模板失败:", err)
	}

	// 创建课程模板
	if _, err := catalog.CreateLessonTemplate(service.LessonTemplateInput{
		Slug:    "warmup-basics",
		Title:   "热身基础",
		Summary: "开始前的 **热身** 要点：\n\n- 动态拉伸\n- 心率提升",
	}); err != nil {
		log.Fatal("创建课程模板失败:", err)
	}

	// 创建计划模板：第 1 天跑步，第 8 天跑步，第 15 天冥想
	program, err := catalog.CreateProgramTemplate(service.ProgramTemplateInput{
		Name:        "21 天启动计划",
		Description: "隔周练习 + 冥想收尾",
		Steps: []service.ProgramStepInput{
			{SequenceOrder: 1, IntervalDaysAfter: 0, HabitTemplateID: run.ID},
			{SequenceOrder: 2, IntervalDaysAfter: 7, HabitTemplateID: run.ID},
			{SequenceOrder: 3, IntervalDaysAfter: 7, HabitTemplateID: meditate.ID},
		},
	})
	if err != nil {
		log.Fatal("创建计划模板失败:", err)
	}

	// 创建示例报名并展开排期
	expander := service.NewExpansionService(db.DB, appLogger)
	lessons := service.NewLessonService(db.DB, appLogger)
	enrollments := service.NewEnrollmentService(db.DB, expander, lessons, appLogger)

	enrollment, err := enrollments.Enroll(service.EnrollmentInput{
		ProgramTemplateID: program.ID,
		UserID:            1,
		StartDate:         calendar.Today(time.Local),
		RepeatCount:       2,
		Timezone:          "Asia/Shanghai",
		Lessons: []service.EnrollmentLessonInput{
			{LessonTemplateSlug: "warmup-basics", DayOffset: -1},
		},
	})
	if err != nil {
		log.Fatal("创建报名失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("计划: %s (ID=%d)\n", program.Name, program.ID)
	fmt.Printf("报名: %s (用户 1, 2 个周期)\n", enrollment.PublicID)
}
