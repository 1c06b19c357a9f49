package extraction

import (
	"fmt"
	"os"
)

// DefaultExtractPrompt instructs the model to turn raw group chatter into a
// JSON array of trade listings. Replaceable via the extract_prompt_path
// config key.
const DefaultExtractPrompt = `你是建筑行业证书交易信息提取助手。用户会发给你建筑行业微信群的聊天消息，请从中提取证书挂靠交易信息。

对每一条交易信息，输出以下字段：
- type: 交易类型（"出"表示出证书，"寻"或"聘"表示找证书，无法判断填""）
- certificate: 证书信息，保留原文写法（如"一级建造师市政带B"）
- social_security: 社保要求（如"社保唯一"、"不转社保"，没有填""）
- location: 地区（省市，没有填""）
- price: 价格，数字，单位为元/年，无法确定填null
- other_info: 其他补充信息
- original_info: 该条信息对应的原始文本行

要求：
1. 输出JSON数组，一行消息可能包含多条交易信息，每条占数组一项
2. 只输出JSON，不要输出任何解释
3. 消息中没有证书交易信息时输出空数组[]`

// DefaultSplitPrompt instructs the model to split a combined certificate
// description into standard certificate names.
const DefaultSplitPrompt = `你是建筑行业证书名称拆分助手。用户会发给你一段组合的证书描述（如"一级公路+水利+中工带B"），请将它拆分为独立的标准证书名称。

要求：
1. 输出JSON数组，如["一级建造师公路","一级建造师水利","中级职称","安全员B证"]
2. "带B"表示附带安全员B证，单独列出
3. 补全省略的证书类别（"一级公路+水利"中"水利"同为一级建造师）
4. 只输出JSON数组，不要输出任何解释`

// LoadPrompt reads a prompt file, falling back to def when path is empty.
func LoadPrompt(path, def string) (string, error) {
	if path == "" {
		return def, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %s: %w", path, err)
	}
	return string(data), nil
}
