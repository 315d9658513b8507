package llm

import (
	"strings"
	"time"
)

// DefaultLanguage is used when no target language is given.
const DefaultLanguage = "zh-TW"

var languageNames = map[string]string{
	"zh-TW": "繁體中文",
	"zh-CN": "简体中文",
	"en-US": "English",
	"en-GB": "English",
	"ja-JP": "日本語",
	"ko-KR": "한국어",
}

// LanguageName maps a language code to the name used in prompts. Unknown
// codes fall back to Traditional Chinese; names pass through.
func LanguageName(code string) string {
	if code == "" {
		return languageNames[DefaultLanguage]
	}
	if name, ok := languageNames[code]; ok {
		return name
	}
	for _, name := range languageNames {
		if name == code {
			return code
		}
	}
	return languageNames[DefaultLanguage]
}

const structuringTemplate = `# Role
你是一位專門負責 Notion 數據結構化的專家。你的任務是將「會議內容或文件」拆解為多個獨立維度的屬性，以對應 Notion 的資料庫欄位。

# Constraints (核心約束)
1. **完整提取**：請仔細閱讀文件，提取所有重要的行動項目、討論重點、決策和待辦事項。目標是提取 5-20 個項目，如果內容豐富可以超過 20 個。
2. **禁止堆疊**：每個項目應該是獨立的待辦事項或重點，不要將所有資訊塞入單一項目。
3. **資訊拆解**：將背景資訊、專案名、負責人、日期分別提取到對應欄位。
4. **詳細描述**：ToDo 欄位應包含具體的行動項目及必要的背景說明，不要過度精簡。
5. **翻譯與繁體化**：所有輸出必須為 [{{language}}]。
6. **關鍵字提取**：針對每項重點，額外提取 3-5 個相關「關鍵字」並翻譯為 [{{language}}]。
7. **輸出格式**：僅輸出純 JSON 陣列，不包含 Markdown 代碼塊標籤。

# Field Mapping Logic (欄位對齊邏輯)
- **歸屬分類 (Array)**: 根據語意判斷分類（例：補助申請、海外市場、商務簽約、會議記錄、產品開發）。
- **專案 (Array)**: 提取具體的專案名稱（例：台日產業交流活動、Q1 產品發布計劃）。
- **ToDo (String)**: 包含具體的行動項目及必要背景。
- **狀態 (Status)**: 根據內容判定，預設為 "未開始"。如果提到「已完成」或「進行中」則相應設定。
- **負責人 (Person)**: 提取提到的個人或團隊。
- **到期日 (Date)**: 提取日期格式 YYYY-MM-DD。若提到「4月」，請根據當前年份輸出 YYYY-04-01。若提到「下週」等相對時間，請根據當前時間推算。
- **建立時間 (DateTime)**: 使用當前時間 {{now}}。
- **關鍵字 (Array of Objects)**: 提取 3-5 個「翻譯後」的核心關鍵字，並賦予 1-10 的權重（10 為最核心）。格式：[{"text": "關鍵字", "weight": 5}]。

# JSON Output Structure
[
  {
    "operation": "CREATE",
    "properties": {
      "歸屬分類": ["String"],
      "專案": ["String"],
      "ToDo": "String",
      "狀態": "未開始" | "進行中" | "完成",
      "負責人": "String",
      "到期日": "YYYY-MM-DD",
      "建立時間": "YYYY-MM-DD HH:mm:ss",
      "關鍵字": [{"text": "String", "weight": Number}]
    }
  }
]`

// StructuringInstruction is the system instruction that asks for a JSON
// array of CREATE operations in language, stamped with now.
func StructuringInstruction(language string, now time.Time) string {
	return strings.NewReplacer(
		"{{language}}", LanguageName(language),
		"{{now}}", now.Format("2006-01-02 15:04:05"),
	).Replace(structuringTemplate)
}

// SimplePrompt wraps text in the key-point request.
func SimplePrompt(text, language string) string {
	return "Please analyze the following text and provide key points. Ensure the output is in " +
		LanguageName(language) + ".\n\n" + text
}
