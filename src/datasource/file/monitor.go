// monitor.go
package file

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监听数据源文件的变化。
// 已加载的表在进程内不会失效，监听只用于提示需要重启。
type FileMonitor struct {
	watcher *fsnotify.Watcher
	files   map[string]struct{}
	lastMod map[string]time.Time
	mu      sync.Mutex
}

// NewFileMonitor 监听 paths 所在的目录，只对 paths 本身的事件回调
func NewFileMonitor(paths ...string) (*FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	m := &FileMonitor{
		watcher: watcher,
		files:   make(map[string]struct{}, len(paths)),
		lastMod: make(map[string]time.Time, len(paths)),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		m.files[abs] = struct{}{}
		if info, err := os.Stat(abs); err == nil {
			m.lastMod[abs] = info.ModTime()
		}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return m, nil
}

// Watch 阻塞直到监听器关闭或出错，被监听文件有写入、新建、删除或重命名时调用 handler
func (m *FileMonitor) Watch(handler func(path string, op fsnotify.Op)) error {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if !m.changed(event) {
				continue
			}
			handler(event.Name, event.Op)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (m *FileMonitor) changed(event fsnotify.Event) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; !ok {
		return false
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		delete(m.lastMod, name)
		return true
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}

	info, err := os.Stat(name)
	if err != nil {
		return false
	}
	// 同一次保存常触发多次写事件，按修改时间去重
	if last, ok := m.lastMod[name]; ok && !info.ModTime().After(last) {
		return false
	}
	m.lastMod[name] = info.ModTime()
	return true
}

// Close 关闭监听器，Watch 随之返回
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
