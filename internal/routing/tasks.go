package routing

import (
	"fmt"

	"github.com/tributary-ai/content-orchestrator/internal/types"
)

// TaskType is an abstract category of generation work
type TaskType string

const (
	TaskOutlinePlanning     TaskType = "outline_planning"
	TaskExerciseGeneration  TaskType = "exercise_generation"
	TaskReasoningValidation TaskType = "reasoning_validation"
	TaskVisualPlanning      TaskType = "visual_planning"
	TaskContentGeneration   TaskType = "content_generation"
	TaskTranslation         TaskType = "translation"
	TaskQuickClassification TaskType = "quick_classification"
	TaskGeneral             TaskType = "general"
	TaskImageHeader         TaskType = "image:header"
	TaskImageDiagram        TaskType = "image:diagram"
	TaskImageConceptual     TaskType = "image:conceptual"
)

// AllTasks lists the closed set of task types
func AllTasks() []TaskType {
	return []TaskType{
		TaskOutlinePlanning,
		TaskExerciseGeneration,
		TaskReasoningValidation,
		TaskVisualPlanning,
		TaskContentGeneration,
		TaskTranslation,
		TaskQuickClassification,
		TaskGeneral,
		TaskImageHeader,
		TaskImageDiagram,
		TaskImageConceptual,
	}
}

// ParseTask validates a task name
func ParseTask(name string) (TaskType, error) {
	for _, t := range AllTasks() {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTask, name)
}

// IsImage reports whether the task produces images
func (t TaskType) IsImage() bool {
	switch t {
	case TaskImageHeader, TaskImageDiagram, TaskImageConceptual:
		return true
	default:
		return false
	}
}

// Profile selects which preference table is active
type Profile string

const (
	ProfileDefault      Profile = "default"
	ProfileCostBalanced Profile = "cost_balanced"
)

// ParseProfile validates a profile name; empty means default
func ParseProfile(name string) (Profile, error) {
	switch Profile(name) {
	case "", ProfileDefault:
		return ProfileDefault, nil
	case ProfileCostBalanced:
		return ProfileCostBalanced, nil
	default:
		return "", fmt.Errorf("invalid routing profile: %s", name)
	}
}

// PreferenceTable maps (profile, task) to an ordered preference list
type PreferenceTable map[Profile]map[TaskType][]types.ModelRef

// Lookup returns the list for (task, profile), falling back to the default
// profile when the requested profile has no entry for the task
func (pt PreferenceTable) Lookup(task TaskType, profile Profile) ([]types.ModelRef, Profile) {
	if refs := pt[profile][task]; len(refs) > 0 {
		return refs, profile
	}
	return pt[ProfileDefault][task], ProfileDefault
}

// Validate checks every task resolves to a non-empty list in at least one profile
func (pt PreferenceTable) Validate() error {
	for _, task := range AllTasks() {
		found := false
		for _, byTask := range pt {
			if len(byTask[task]) > 0 {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("task %s has no preference list in any profile", task)
		}
	}
	return nil
}

func ref(p types.ProviderID, model string) types.ModelRef {
	return types.ModelRef{Provider: p, Model: model}
}

var (
	claudeSonnet     = ref(types.ProviderAnthropic, "claude-sonnet-4-20250514")
	claudeHaiku      = ref(types.ProviderAnthropic, "claude-3-5-haiku-20241022")
	gpt4o            = ref(types.ProviderOpenAI, "gpt-4o")
	gpt4oMini        = ref(types.ProviderOpenAI, "gpt-4o-mini")
	gptImage         = ref(types.ProviderOpenAI, "gpt-image-1")
	dalle3           = ref(types.ProviderOpenAI, "dall-e-3")
	geminiPro        = ref(types.ProviderGoogle, "gemini-2.5-pro")
	geminiFlash      = ref(types.ProviderGoogle, "gemini-2.5-flash")
	groqLlama70      = ref(types.ProviderGroq, "llama-3.3-70b-versatile")
	groqLlama8       = ref(types.ProviderGroq, "llama-3.1-8b-instant")
	mistralLarge     = ref(types.ProviderMistral, "mistral-large-latest")
	mistralSmall     = ref(types.ProviderMistral, "mistral-small-latest")
	deepseekChat     = ref(types.ProviderDeepSeek, "deepseek-chat")
	deepseekReasoner = ref(types.ProviderDeepSeek, "deepseek-reasoner")
	fluxSchnell      = ref(types.ProviderRunware, "runware:100@1")
	fluxDev          = ref(types.ProviderRunware, "runware:101@1")
	hfLlama          = ref(types.ProviderHuggingFace, "meta-llama/Llama-3.3-70B-Instruct")
	qwenPlus         = ref(types.ProviderQwen, "qwen-plus")
	qwenTurbo        = ref(types.ProviderQwen, "qwen-turbo")
)

// DefaultPreferences returns the built-in routing tables
func DefaultPreferences() PreferenceTable {
	return PreferenceTable{
		ProfileDefault: {
			TaskOutlinePlanning:     {claudeSonnet, gpt4o, geminiPro, deepseekReasoner},
			TaskExerciseGeneration:  {claudeSonnet, gpt4o, geminiFlash, mistralLarge},
			TaskReasoningValidation: {deepseekReasoner, gpt4o, claudeSonnet, geminiPro},
			TaskVisualPlanning:      {geminiPro, claudeSonnet, gpt4o},
			TaskContentGeneration:   {claudeSonnet, geminiPro, gpt4o},
			TaskTranslation:         {geminiFlash, gpt4oMini, qwenPlus, mistralSmall},
			TaskQuickClassification: {groqLlama8, gpt4oMini, geminiFlash, claudeHaiku},
			TaskGeneral:             {gpt4oMini, claudeHaiku, geminiFlash, groqLlama70, deepseekChat, hfLlama},
			TaskImageHeader:         {gptImage, fluxDev, dalle3},
			TaskImageDiagram:        {gptImage, fluxDev},
			TaskImageConceptual:     {fluxDev, dalle3, fluxSchnell},
		},
		ProfileCostBalanced: {
			TaskOutlinePlanning:     {deepseekChat, geminiFlash, gpt4oMini},
			TaskExerciseGeneration:  {geminiFlash, deepseekChat, gpt4oMini, groqLlama70},
			TaskReasoningValidation: {deepseekReasoner, geminiFlash},
			TaskVisualPlanning:      {geminiFlash, gpt4oMini},
			TaskContentGeneration:   {geminiFlash, deepseekChat, gpt4oMini, groqLlama70},
			TaskTranslation:         {qwenTurbo, geminiFlash, mistralSmall},
			TaskQuickClassification: {groqLlama8, geminiFlash},
			TaskGeneral:             {groqLlama70, geminiFlash, gpt4oMini},
			TaskImageHeader:         {fluxSchnell, dalle3},
			TaskImageDiagram:        {fluxDev, gptImage},
			TaskImageConceptual:     {fluxSchnell},
		},
	}
}

// universalText and universalImage are the provider-agnostic resolution orders
// used when nothing in a task's preference list is available
var (
	universalText  = []types.ModelRef{gpt4oMini, claudeHaiku, geminiFlash, groqLlama70, deepseekChat, mistralSmall, qwenPlus, hfLlama}
	universalImage = []types.ModelRef{fluxSchnell, dalle3}
)
